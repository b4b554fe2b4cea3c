package extract

// Format names produced by detection.
const (
	FormatPDF          = "pdf"
	FormatPresentation = "converted_presentation"
	FormatSpreadsheet  = "converted_spreadsheet"
	FormatDOCX         = "docx"
	FormatXLSX         = "xlsx"
	FormatPPTX         = "pptx"
	FormatText         = "text"
	FormatMarkdown     = "markdown"
	FormatCSV          = "csv"
	FormatJSON         = "json"
	FormatHTML         = "html"
	FormatUnknown      = "unknown"
)

// Result is the unified output of every extractor: plain-text content plus
// the structural breakdown a format exposes.
type Result struct {
	Content   string         `json:"content"`
	Format    string         `json:"format"`
	Method    string         `json:"extraction_method"`
	Quality   float64        `json:"extraction_quality"`
	NeedsOCR  bool           `json:"needs_ocr,omitempty"`
	Error     string         `json:"extraction_error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Pages     []Page         `json:"pages,omitempty"`
	Slides    []Slide        `json:"slides,omitempty"`
	Sheets    []Sheet        `json:"sheets,omitempty"`
	Tables    []Table        `json:"tables,omitempty"`
	Headings  []Heading      `json:"headings,omitempty"`
	Structure any            `json:"structure,omitempty"` // parsed form for JSON inputs
}

// Page is one page of a PDF.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Slide is one slide of a presentation (native PPTX or converted PDF).
type Slide struct {
	Number  int      `json:"number"`
	Title   string   `json:"title,omitempty"`
	Bullets []string `json:"bullets,omitempty"`
	Text    string   `json:"text,omitempty"`
	Shapes  []string `json:"shapes,omitempty"`
}

// Sheet is one worksheet of a spreadsheet.
type Sheet struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	RowNum  int        `json:"row_count"`
	ColNum  int        `json:"col_count"`
	Text    string     `json:"text"`
}

// Table is a tabular region found in a document.
type Table struct {
	Page int        `json:"page,omitempty"`
	Rows [][]string `json:"rows"`
}

// Heading is a structural heading with its level.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// PipeRows renders table rows pipe-delimited with a separator rule after
// the first row, the way converted spreadsheets are rebuilt.
func PipeRows(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	out := make([]byte, 0, 256)
	writeRow := func(cells []string) {
		out = append(out, '|')
		for _, c := range cells {
			out = append(out, ' ')
			out = append(out, c...)
			out = append(out, ' ', '|')
		}
		out = append(out, '\n')
	}
	writeRow(rows[0])
	out = append(out, '|')
	for range rows[0] {
		out = append(out, " --- |"...)
	}
	out = append(out, '\n')
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return string(out)
}
