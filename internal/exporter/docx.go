package exporter

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"
)

const docxThumbWidth = 4.0 // inches

// renderDOCX writes the document through a temp file; godocx saves by path.
// Highlights are not applied in DOCX output.
func renderDOCX(req ExportRequest) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, err
	}

	font := req.FontName
	size := uint64(req.FontSize)

	if w, h, ok := imageSize(req.ThumbnailPath); ok {
		height := docxThumbWidth * float64(h) / float64(w)
		if _, err := doc.AddPicture(req.ThumbnailPath, units.Inch(docxThumbWidth), units.Inch(height)); err != nil {
			return nil, fmt.Errorf("add thumbnail: %w", err)
		}
	}

	doc.AddParagraph("").AddText(req.Title).Font(font).Size(size + 9).Color("1a1a1a").Bold(true)
	if req.Channel != "" {
		doc.AddParagraph("").AddText("By: " + req.Channel).Font(font).Size(12).Color("666666").Italic(true)
	}

	if len(req.Chapters) > 0 {
		addDocxHeading(doc, "Chapters", font, size)
		for _, ch := range req.Chapters {
			doc.AddParagraph("").AddText(ch.Timestamp + " - " + ch.Title).Font(font).Size(size).Color("000000")
		}
	}

	if len(req.Takeaways) > 0 {
		addDocxHeading(doc, "Key Takeaways", font, size)
		for i, t := range req.Takeaways {
			doc.AddParagraph("").AddText(fmt.Sprintf("%d. %s", i+1, t)).Font(font).Size(size).Color("000000")
		}
	}

	addDocxHeading(doc, "Transcript", font, size)
	for _, para := range paragraphs(req.Transcript) {
		var body []string
		for _, line := range strings.Split(para, "\n") {
			if h, ok := headingText(line); ok {
				if len(body) > 0 {
					addDocxBody(doc.AddParagraph(""), strings.Join(body, " "), font, size)
					body = body[:0]
				}
				doc.AddParagraph("").AddText(h).Font(font).Size(size + 1).Color("000000").Bold(true)
				continue
			}
			if line = strings.TrimSpace(line); line != "" {
				body = append(body, line)
			}
		}
		if len(body) > 0 {
			addDocxBody(doc.AddParagraph(""), strings.Join(body, " "), font, size)
		}
	}

	tmp, err := os.MkdirTemp("", "export-docx-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	out := filepath.Join(tmp, "out.docx")
	if err := doc.SaveTo(out); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

func addDocxHeading(doc *docx.RootDoc, text, font string, size uint64) {
	doc.AddParagraph("").AddText(text).Font(font).Size(size + 4).Color("0066cc").Bold(true)
}

// addDocxBody writes text, turning inline **bold** spans into bold runs.
func addDocxBody(p *docx.Paragraph, text, font string, size uint64) {
	parts := strings.Split(text, "**")
	for i, part := range parts {
		if part == "" {
			continue
		}
		run := p.AddText(part).Font(font).Size(size).Color("000000")
		// odd parts sit between a pair of markers
		if i%2 == 1 && i < len(parts)-1 {
			run.Bold(true)
		}
	}
}

// imageSize reports pixel dimensions of a JPEG or PNG file.
func imageSize(path string) (int, int, bool) {
	if path == "" {
		return 0, 0, false
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
