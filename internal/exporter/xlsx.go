package exporter

import (
	"github.com/xuri/excelize/v2"

	"video-transcript-go/internal/extractor"
)

const (
	sheetSummary   = "Summary"
	sheetChapters  = "Chapters"
	sheetTakeaways = "Takeaways"
	sheetSegments  = "Segments"
)

func renderXLSX(req ExportRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetChapters, sheetTakeaways, sheetSegments} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Title", req.Title},
		{"Channel", req.Channel},
		{"Chapters", len(req.Chapters)},
		{"Takeaways", len(req.Takeaways)},
		{"Segments", len(req.Segments)},
		{"Transcript", req.Transcript},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheetSummary, "A1", "A6", header)
	_ = f.SetCellStyle(sheetSummary, "B6", "B6", wrap)
	_ = f.SetColWidth(sheetSummary, "A", "A", 14)
	_ = f.SetColWidth(sheetSummary, "B", "B", 100)

	rows := [][]any{{"Timestamp", "Title"}}
	for _, ch := range req.Chapters {
		rows = append(rows, []any{ch.Timestamp, ch.Title})
	}
	if err := writeRows(f, sheetChapters, rows); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheetChapters, "A1", "B1", header)
	_ = f.SetColWidth(sheetChapters, "B", "B", 60)

	rows = [][]any{{"#", "Takeaway"}}
	for i, t := range req.Takeaways {
		rows = append(rows, []any{i + 1, t})
	}
	if err := writeRows(f, sheetTakeaways, rows); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheetTakeaways, "A1", "B1", header)
	_ = f.SetColWidth(sheetTakeaways, "B", "B", 100)

	rows = [][]any{{"Start", "End", "Timestamp", "Text"}}
	for _, s := range req.Segments {
		rows = append(rows, []any{s.Start, s.End, extractor.FormatTimestamp(s.Start), s.Text})
	}
	if err := writeRows(f, sheetSegments, rows); err != nil {
		return nil, err
	}
	_ = f.SetCellStyle(sheetSegments, "A1", "D1", header)
	_ = f.SetColWidth(sheetSegments, "D", "D", 100)

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
