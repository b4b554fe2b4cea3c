package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX reads an XLSX workbook via excelize: per-sheet text plus the
// structured headers/rows/shape breakdown.
func extractXLSX(data []byte) (*Result, error) {
	xf, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer xf.Close()

	res := &Result{
		Format:   FormatXLSX,
		Method:   "xlsx_excelize",
		Quality:  0.9,
		Metadata: map[string]any{},
	}

	if props, err := xf.GetDocProps(); err == nil && props != nil {
		if props.Title != "" {
			res.Metadata["title"] = props.Title
		}
		if props.Creator != "" {
			res.Metadata["author"] = props.Creator
		}
	}

	var sb strings.Builder
	for _, name := range xf.GetSheetList() {
		rows, err := xf.GetRows(name)
		if err != nil {
			continue
		}

		sheet := Sheet{Name: name, Rows: rows, RowNum: len(rows)}
		if len(rows) > 0 {
			sheet.Headers = rows[0]
			sheet.ColNum = len(rows[0])
		}

		var st strings.Builder
		for _, row := range rows {
			st.WriteString(strings.Join(row, "\t"))
			st.WriteString("\n")
		}
		sheet.Text = strings.TrimSpace(st.String())
		res.Sheets = append(res.Sheets, sheet)

		fmt.Fprintf(&sb, "SHEET: %s\n%s\n\n", name, sheet.Text)
	}

	res.Metadata["sheet_count"] = len(res.Sheets)
	res.Content = strings.TrimSpace(sb.String())
	return res, nil
}
