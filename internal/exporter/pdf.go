package exporter

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin       = 25.4 // 1in, in mm
	pdfThumbWidth   = 100.0
	pdfLineFactor   = 0.55 // line height in mm per font point
	pdfHeadingColor = "#0066cc"
)

var tokenRe = regexp.MustCompile(`\S+|\s+`)

type pdfWriter struct {
	pdf      *fpdf.Fpdf
	tr       func(string) string
	family   string
	size     float64
	lineH    float64
	contentW float64
}

func renderPDF(req ExportRequest) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(req.Title, true)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	w := &pdfWriter{
		pdf:      pdf,
		tr:       pdf.UnicodeTranslatorFromDescriptor(""),
		family:   pdfFamily(req.FontName),
		size:     float64(req.FontSize),
		lineH:    float64(req.FontSize) * pdfLineFactor,
		contentW: pageW - 2*pdfMargin,
	}

	w.thumbnail(req.ThumbnailPath)
	w.title(req.Title, req.Channel)

	if len(req.Chapters) > 0 {
		w.heading("Chapters")
		for _, ch := range req.Chapters {
			w.pdf.SetFont(w.family, "B", w.size)
			w.pdf.CellFormat(w.pdf.GetStringWidth(w.tr(ch.Timestamp))+1, w.lineH, w.tr(ch.Timestamp), "", 0, "L", false, 0, "")
			w.pdf.SetFont(w.family, "", w.size)
			w.pdf.MultiCell(0, w.lineH, w.tr(" - "+ch.Title), "", "L", false)
		}
	}

	if len(req.Takeaways) > 0 {
		w.heading("Key Takeaways")
		w.pdf.SetFont(w.family, "", w.size)
		for i, t := range req.Takeaways {
			w.pdf.MultiCell(0, w.lineH, w.tr(fmt.Sprintf("%d. %s", i+1, t)), "", "L", false)
		}
	}

	w.heading("Transcript")
	for _, para := range paragraphs(req.Transcript) {
		for _, line := range strings.Split(para, "\n") {
			if h, ok := headingText(line); ok {
				w.pdf.SetFont(w.family, "B", w.size+1)
				w.pdf.MultiCell(0, w.lineH, w.tr(h), "", "L", false)
				continue
			}
			w.runs(ApplyHighlights(stripBold(strings.TrimSpace(line)), req.Highlights))
		}
		w.pdf.Ln(w.lineH * 0.6)
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *pdfWriter) thumbnail(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	opts := fpdf.ImageOptions{ReadDpi: true}
	info := w.pdf.RegisterImageOptions(path, opts)
	if w.pdf.Err() || info == nil {
		// unreadable images are skipped, not fatal
		w.pdf.ClearError()
		return
	}
	x := pdfMargin + (w.contentW-pdfThumbWidth)/2
	w.pdf.ImageOptions(path, x, w.pdf.GetY(), pdfThumbWidth, 0, true, opts, 0, "")
	w.pdf.Ln(4)
}

func (w *pdfWriter) title(title, channel string) {
	w.pdf.SetFont(w.family, "B", w.size+9)
	w.pdf.SetTextColor(26, 26, 26)
	w.pdf.MultiCell(0, (w.size+9)*pdfLineFactor, w.tr(title), "", "C", false)

	r, g, b := hexColor(pdfHeadingColor)
	w.pdf.SetDrawColor(r, g, b)
	w.pdf.SetLineWidth(0.6)
	y := w.pdf.GetY() + 1
	w.pdf.Line(pdfMargin, y, pdfMargin+w.contentW, y)
	w.pdf.Ln(4)

	if channel != "" {
		w.pdf.SetFont(w.family, "I", w.size)
		w.pdf.SetTextColor(102, 102, 102)
		w.pdf.MultiCell(0, w.lineH, w.tr("By: "+channel), "", "C", false)
		w.pdf.Ln(2)
	}
	w.pdf.SetTextColor(51, 51, 51)
}

func (w *pdfWriter) heading(text string) {
	w.pdf.Ln(w.lineH * 0.5)
	r, g, b := hexColor(pdfHeadingColor)
	w.pdf.SetTextColor(r, g, b)
	w.pdf.SetFont(w.family, "B", w.size+4)
	w.pdf.MultiCell(0, (w.size+4)*pdfLineFactor, w.tr(text), "", "L", false)
	w.pdf.SetTextColor(51, 51, 51)
	w.pdf.Ln(1)
}

// runs lays out text word by word so highlighted words get a filled cell
// behind them.
func (w *pdfWriter) runs(runs []Run) {
	w.pdf.SetFont(w.family, "", w.size)
	left := pdfMargin
	right := pdfMargin + w.contentW

	for _, run := range runs {
		fill := run.Color != ""
		if fill {
			r, g, b := hexColor(run.Color)
			w.pdf.SetFillColor(r, g, b)
		}
		for _, tok := range tokenRe.FindAllString(run.Text, -1) {
			text := w.tr(tok)
			if strings.TrimSpace(tok) == "" {
				if w.pdf.GetX() <= left {
					continue
				}
				text = " "
			}
			width := w.pdf.GetStringWidth(text)
			if text != " " && w.pdf.GetX()+width > right && w.pdf.GetX() > left {
				w.pdf.Ln(w.lineH)
			}
			w.pdf.CellFormat(width, w.lineH, text, "", 0, "L", fill, 0, "")
		}
	}
	w.pdf.Ln(w.lineH)
}

// pdfFamily maps a requested font onto one of the PDF core fonts.
func pdfFamily(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "times"), strings.Contains(n, "georgia"), strings.Contains(n, "serif") && !strings.Contains(n, "sans"):
		return "Times"
	case strings.Contains(n, "courier"), strings.Contains(n, "mono"):
		return "Courier"
	default:
		return "Helvetica"
	}
}

// hexColor parses #rrggbb (or rrggbb, or #rgb). Bad input yields yellow.
func hexColor(s string) (int, int, int) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 255, 255, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 255, 255, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
