package extractor

import (
	"encoding/json"
	"strings"

	"video-transcript-go/internal/types"
)

const (
	FallbackTimestamp    = "00:00"
	FallbackChapterTitle = "Full Content"
	FallbackTakeaway     = "See transcript for details"
)

// Fallback is the fixed record returned when model output cannot be parsed.
// raw is kept for manual inspection.
func Fallback(raw string) types.Structured {
	return types.Structured{
		Chapters:    []types.Chapter{{Timestamp: FallbackTimestamp, Title: FallbackChapterTitle}},
		Takeaways:   []string{FallbackTakeaway},
		RawResponse: raw,
		Fallback:    true,
	}
}

// ExtractStructured pulls a chapters/takeaways record out of free-form model
// text. It takes everything between the first '{' and the last '}' and decodes
// it; anything else yields Fallback(raw). It never fails.
//
// Items are decoded one by one so a single odd value (a numeric timestamp, a
// takeaway given as an object) does not throw away the rest of the answer.
func ExtractStructured(raw string) types.Structured {
	body, ok := enclosedObject(raw)
	if !ok {
		return Fallback(raw)
	}

	var parsed struct {
		Chapters  []json.RawMessage `json:"chapters"`
		Takeaways []json.RawMessage `json:"takeaways"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return Fallback(raw)
	}

	out := types.Structured{
		Chapters:  make([]types.Chapter, 0, len(parsed.Chapters)),
		Takeaways: make([]string, 0, len(parsed.Takeaways)),
	}
	for _, item := range parsed.Chapters {
		if ch, ok := decodeChapter(item); ok {
			out.Chapters = append(out.Chapters, ch)
		}
	}
	for _, item := range parsed.Takeaways {
		if t, ok := decodeText(item, "text", "takeaway", "title"); ok {
			out.Takeaways = append(out.Takeaways, t)
		}
	}
	return out
}

func decodeChapter(item json.RawMessage) (types.Chapter, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return types.Chapter{}, false
	}

	var ch types.Chapter
	if ts, ok := fields["timestamp"]; ok {
		var secs float64
		if err := json.Unmarshal(ts, &secs); err == nil {
			ch.Timestamp = FormatTimestamp(secs)
		} else {
			ch.Timestamp, _ = decodeText(ts)
		}
	}
	if title, ok := fields["title"]; ok {
		ch.Title, _ = decodeText(title)
	}
	return ch, true
}

// decodeText renders a JSON value as text. Strings are used as they are,
// objects by the first string field named in keys, anything else as its
// JSON literal. null gives false.
func decodeText(v json.RawMessage, keys ...string) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err == nil {
		if obj == nil {
			return "", false
		}
		for _, k := range keys {
			if err := json.Unmarshal(obj[k], &s); err == nil {
				return s, true
			}
		}
	}
	lit := strings.TrimSpace(string(v))
	if lit == "null" {
		return "", false
	}
	return lit, true
}

func enclosedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
