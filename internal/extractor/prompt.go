package extractor

import (
	"fmt"
	"strings"

	"video-transcript-go/internal/types"
)

const (
	// MaxPromptSegments caps how many segments feed structured generation.
	MaxPromptSegments = 100
	// MaxExcerptChars caps the rendered, timestamped excerpt.
	MaxExcerptChars = 8000
)

const structuredPrompt = `Analyze this video/podcast transcript and generate:
1. CHAPTERS: Identify 4-8 logical chapters/sections with timestamps. Format each as:
   [MM:SS] Chapter Title

2. KEY TAKEAWAYS: Extract 5-10 most important points, insights, or actionable items.

Title: %s

Transcript with timestamps:
%s

Respond in this exact JSON format:
{
    "chapters": [
        {"timestamp": "00:00", "title": "Introduction"},
        {"timestamp": "02:30", "title": "Main Topic"}
    ],
    "takeaways": [
        "First key insight or takeaway",
        "Second key insight or takeaway"
    ]
}

JSON Response:`

const reformatPrompt = `Format this transcript section for readability. You must:

1. REMOVE any mentions of:
   - Subscribing to channel
   - Liking the video
   - Hitting the bell/notification
   - Sponsor segments or ad reads
   - Patreon/membership promotions
   - Social media follows
   - "Check out my other videos"
   - Any self-promotional content

2. ORGANIZE into logical paragraphs (3-5 sentences each)

3. ADD section headings where topics change. Format headings as: **Heading Title**

4. FIX grammar and remove filler words (um, uh, you know, like)

5. Keep all the actual educational/informational content intact

Transcript section %d/%d:
%s

Formatted output (with **bold** section headings):`

// BuildStructuredPrompt renders the chapters/takeaways request. Only the first
// MaxPromptSegments segments are used and the excerpt is cut at MaxExcerptChars.
// When segments is empty the plain transcript is used instead.
func BuildStructuredPrompt(title, transcript string, segments []types.Segment) string {
	if len(segments) > MaxPromptSegments {
		segments = segments[:MaxPromptSegments]
	}

	var excerpt string
	if len(segments) > 0 {
		var b strings.Builder
		for _, seg := range segments {
			fmt.Fprintf(&b, "[%s] %s\n", clockMinutes(seg.Start), seg.Text)
		}
		excerpt = b.String()
	} else {
		excerpt = transcript
	}

	return fmt.Sprintf(structuredPrompt, title, truncate(excerpt, MaxExcerptChars))
}

// BuildReformatPrompt renders the rewrite request for chunk index (0-based) of total.
func BuildReformatPrompt(chunk string, index, total int) string {
	return fmt.Sprintf(reformatPrompt, index+1, total, chunk)
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS past the first hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// SegmentsToText renders one "[timestamp] text" line per segment.
func SegmentsToText(segments []types.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("[%s] %s", FormatTimestamp(seg.Start), seg.Text))
	}
	return strings.Join(lines, "\n")
}

// clockMinutes is the prompt's timestamp form: minutes are not rolled into hours.
func clockMinutes(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
