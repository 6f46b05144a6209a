package exporter

import (
	"errors"
	"fmt"
	"strings"

	"video-transcript-go/internal/types"
)

const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatXLSX = "xlsx"

	DefaultFontName = "Arial"
	DefaultFontSize = 11

	maxFilenameRunes = 50
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

var mediaTypes = map[string]string{
	FormatPDF:  "application/pdf",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type ExportRequest struct {
	Title      string          `json:"title"`
	Chapters   []types.Chapter `json:"chapters"`
	Takeaways  []string        `json:"takeaways"`
	Transcript string          `json:"transcript"`
	Format     string          `json:"format"`
	FontName   string          `json:"font_name"`
	FontSize   int             `json:"font_size"`
	Highlights []Highlight     `json:"highlights"`
	// ThumbnailPath is a local image file; callers resolve it before export.
	ThumbnailPath string          `json:"thumbnail_path"`
	Channel       string          `json:"channel"`
	Segments      []types.Segment `json:"segments"`
}

// Document is a rendered export ready to be sent as an attachment.
type Document struct {
	Content   []byte
	MediaType string
	Filename  string
}

// Export renders req in the requested format. An empty format means PDF.
func Export(req ExportRequest) (Document, error) {
	if req.Format == "" {
		req.Format = FormatPDF
	}
	req.Format = strings.ToLower(req.Format)
	if req.FontName == "" {
		req.FontName = DefaultFontName
	}
	if req.FontSize <= 0 {
		req.FontSize = DefaultFontSize
	}

	var (
		content []byte
		err     error
	)
	switch req.Format {
	case FormatPDF:
		content, err = renderPDF(req)
	case FormatDOCX:
		content, err = renderDOCX(req)
	case FormatXLSX:
		content, err = renderXLSX(req)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return Document{}, fmt.Errorf("render %s: %w", req.Format, err)
	}

	return Document{
		Content:   content,
		MediaType: mediaTypes[req.Format],
		Filename:  Filename(req.Title, req.Format),
	}, nil
}

// Filename is the first 50 characters of title plus the format extension.
func Filename(title, format string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '"', '/', '\\', '\n', '\r':
			return -1
		}
		return r
	}, title)
	r := []rune(clean)
	if len(r) > maxFilenameRunes {
		r = r[:maxFilenameRunes]
	}
	name := strings.TrimSpace(string(r))
	if name == "" {
		name = "transcript"
	}
	return name + "." + format
}

// paragraphs splits a transcript on blank lines, dropping empty ones.
func paragraphs(transcript string) []string {
	var out []string
	for _, p := range strings.Split(transcript, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// headingText returns the inner text of a "**Heading**" line.
func headingText(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if len(line) > 4 && strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") {
		inner := strings.TrimSpace(line[2 : len(line)-2])
		if inner != "" && !strings.Contains(inner, "**") {
			return inner, true
		}
	}
	return "", false
}

func stripBold(s string) string {
	return strings.ReplaceAll(s, "**", "")
}
