package exporter

import (
	"sort"
	"strings"
)

const DefaultHighlightColor = "#ffff00"

type Highlight struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Run is a stretch of text with an optional background colour.
type Run struct {
	Text  string
	Color string
}

type span struct {
	start, end int
	color      string
}

// ApplyHighlights splits text into runs. Highlights are applied in order; each
// claims every non-overlapping occurrence from left to right and skips any
// occurrence that overlaps a span already claimed by an earlier highlight.
// Empty patterns are ignored and a missing colour means yellow.
func ApplyHighlights(text string, highlights []Highlight) []Run {
	var claimed []span
	for _, h := range highlights {
		if h.Text == "" {
			continue
		}
		color := h.Color
		if color == "" {
			color = DefaultHighlightColor
		}

		for from := 0; from <= len(text)-len(h.Text); {
			i := strings.Index(text[from:], h.Text)
			if i < 0 {
				break
			}
			s := span{start: from + i, end: from + i + len(h.Text), color: color}
			if overlapsAny(s, claimed) {
				from = s.start + 1
				continue
			}
			claimed = append(claimed, s)
			from = s.end
		}
	}

	if len(claimed) == 0 {
		if text == "" {
			return nil
		}
		return []Run{{Text: text}}
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })

	var runs []Run
	pos := 0
	for _, s := range claimed {
		if s.start > pos {
			runs = append(runs, Run{Text: text[pos:s.start]})
		}
		runs = append(runs, Run{Text: text[s.start:s.end], Color: s.color})
		pos = s.end
	}
	if pos < len(text) {
		runs = append(runs, Run{Text: text[pos:]})
	}
	return runs
}

func overlapsAny(s span, claimed []span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}
