package inbox

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// readSheetURLs reads media URLs from the first sheet of a workbook. The URL
// column is found by header name; without a match, the first column holding
// an http(s) value in the first data row is used.
func readSheetURLs(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	col := urlColumn(rows[0])
	if col == -1 {
		for i, v := range rows[1] {
			if isHTTP(v) {
				col = i
				break
			}
		}
	}
	if col == -1 {
		return nil, fmt.Errorf("no url column")
	}

	var out []string
	for _, r := range rows[1:] {
		if col >= len(r) {
			continue
		}
		u := strings.TrimSpace(r[col])
		// rows without a real link are skipped quietly
		if !isHTTP(u) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func urlColumn(header []string) int {
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		if strings.Contains(l, "url") || strings.Contains(l, "link") || strings.Contains(l, "video") || strings.Contains(l, "episode") {
			return i
		}
	}
	return -1
}

func isHTTP(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
