package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF parses a PDF, classifies it (native, converted presentation,
// converted spreadsheet) and builds the matching result.
func extractPDF(data []byte) (res *Result, err error) {
	// The pdf library panics on some malformed font tables.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(content)})
	}

	meta := pdfInfo(reader)
	producer, _ := meta["producer"].(string)
	creator, _ := meta["creator"].(string)

	switch ClassifyPDF(producer, creator, pages, pageAspect(reader)) {
	case FormatPresentation:
		return presentationFromPages(pages, meta), nil
	case FormatSpreadsheet:
		return spreadsheetFromPages(pages, meta), nil
	}

	var sb strings.Builder
	total := 0
	for _, p := range pages {
		total += len(p.Text)
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}

	needsOCR := len(pages) >= 1 && total < 100
	quality := 0.9
	if needsOCR {
		quality = 0.3
	}
	meta["page_count"] = reader.NumPage()

	return &Result{
		Content:  strings.TrimSpace(sb.String()),
		Format:   FormatPDF,
		Method:   "pdf_native",
		Quality:  quality,
		NeedsOCR: needsOCR,
		Metadata: meta,
		Pages:    pages,
	}, nil
}

// pdfInfo reads the document information dictionary.
func pdfInfo(r *pdf.Reader) map[string]any {
	meta := map[string]any{}
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	for key, field := range map[string]string{
		"Title":    "title",
		"Author":   "author",
		"Producer": "producer",
		"Creator":  "creator",
		"Subject":  "subject",
	} {
		v := info.Key(key)
		if v.Kind() == pdf.String {
			if s := strings.TrimSpace(v.RawString()); s != "" {
				meta[field] = s
			}
		}
	}
	return meta
}

// pageAspect returns width/height of the first page, or 0 when unknown.
func pageAspect(r *pdf.Reader) float64 {
	if r.NumPage() < 1 {
		return 0
	}
	box := r.Page(1).V.Key("MediaBox")
	if box.IsNull() || box.Len() < 4 {
		return 0
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if h <= 0 {
		return 0
	}
	return w / h
}

var cellRefPattern = regexp.MustCompile(`\b[A-Z]{1,2}[0-9]{1,3}\b`)

// ClassifyPDF decides whether a PDF is native, a converted presentation,
// or a converted spreadsheet. Producer/creator metadata wins; text-shape
// heuristics break ties for documents exported without telltale metadata.
func ClassifyPDF(producer, creator string, pages []Page, aspect float64) string {
	source := strings.ToLower(producer + " " + creator)
	for _, marker := range []string{"powerpoint", "impress", "keynote", "google slides"} {
		if strings.Contains(source, marker) {
			return FormatPresentation
		}
	}
	for _, marker := range []string{"excel", "libreoffice calc", "spreadsheet", "sheets"} {
		if strings.Contains(source, marker) {
			return FormatSpreadsheet
		}
	}

	if looksTabular(pages) {
		return FormatSpreadsheet
	}
	if aspect >= 1.3 && looksSlideLike(pages) {
		return FormatPresentation
	}
	return FormatPDF
}

// looksTabular reports grid patterns: most non-empty lines split into
// multiple columns, or a pile of spreadsheet cell references.
func looksTabular(pages []Page) bool {
	var lines, gridLines, cellRefs int
	for _, p := range pages {
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines++
			if len(splitColumns(line)) >= 2 {
				gridLines++
			}
		}
		cellRefs += len(cellRefPattern.FindAllString(p.Text, -1))
	}
	if lines == 0 {
		return false
	}
	return float64(gridLines)/float64(lines) >= 0.6 || cellRefs >= 8
}

// looksSlideLike reports sparse pages with bullet markers.
func looksSlideLike(pages []Page) bool {
	if len(pages) == 0 {
		return false
	}
	var lines, bullets int
	for _, p := range pages {
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines++
			if isBulletLine(line) {
				bullets++
			}
		}
	}
	avg := float64(lines) / float64(len(pages))
	return avg <= 15 && bullets > 0
}

func isBulletLine(line string) bool {
	for _, prefix := range []string{"•", "-", "*", "–", "▪", "◦"} {
		if strings.HasPrefix(line, prefix+" ") || line == prefix {
			return true
		}
	}
	return false
}

var pageNumberPattern = regexp.MustCompile(`^(page\s+)?\d{1,4}(\s*/\s*\d{1,4})?$`)

func isPageNumber(line string) bool {
	return pageNumberPattern.MatchString(strings.ToLower(strings.TrimSpace(line)))
}

// presentationFromPages treats each page as a slide: the first non-empty,
// non-page-number line becomes the title, bulleted lines become bullets,
// and content is rebuilt in "SLIDE N: title" form.
func presentationFromPages(pages []Page, meta map[string]any) *Result {
	var slides []Slide
	var sb strings.Builder

	for i, p := range pages {
		slide := Slide{Number: i + 1}
		var body []string
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || isPageNumber(line) {
				continue
			}
			if slide.Title == "" {
				slide.Title = line
				continue
			}
			if isBulletLine(line) {
				slide.Bullets = append(slide.Bullets, strings.TrimSpace(strings.TrimLeft(line, "•-*–▪◦ ")))
			} else {
				body = append(body, line)
			}
		}
		slide.Text = strings.Join(body, "\n")
		slides = append(slides, slide)

		fmt.Fprintf(&sb, "SLIDE %d: %s\n", slide.Number, slide.Title)
		for _, b := range slide.Bullets {
			fmt.Fprintf(&sb, "  • %s\n", b)
		}
		if slide.Text != "" {
			sb.WriteString(slide.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	meta["detected_format"] = FormatPresentation
	meta["slide_count"] = len(slides)
	return &Result{
		Content:  strings.TrimSpace(sb.String()),
		Format:   FormatPresentation,
		Method:   "pdf_presentation",
		Quality:  0.85,
		Metadata: meta,
		Pages:    pages,
		Slides:   slides,
	}
}

// spreadsheetFromPages extracts tables page by page and rebuilds the
// content as pipe-delimited rows interleaved with page headers.
func spreadsheetFromPages(pages []Page, meta map[string]any) *Result {
	var tables []Table
	var sb strings.Builder

	for _, p := range pages {
		var rows [][]string
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimRight(line, " \t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			cells := splitColumns(line)
			if len(cells) >= 2 {
				rows = append(rows, cells)
			}
		}
		fmt.Fprintf(&sb, "PAGE %d\n", p.Number)
		if len(rows) > 0 {
			tables = append(tables, Table{Page: p.Number, Rows: rows})
			sb.WriteString(PipeRows(rows))
		}
		sb.WriteString("\n")
	}

	meta["detected_format"] = FormatSpreadsheet
	meta["table_count"] = len(tables)
	return &Result{
		Content:  strings.TrimSpace(sb.String()),
		Format:   FormatSpreadsheet,
		Method:   "pdf_spreadsheet",
		Quality:  0.85,
		Metadata: meta,
		Pages:    pages,
		Tables:   tables,
	}
}

var columnSplitter = regexp.MustCompile(`\t+| {2,}`)

// splitColumns breaks a text line into cells on tabs or runs of spaces.
func splitColumns(line string) []string {
	parts := columnSplitter.Split(strings.TrimSpace(line), -1)
	cells := parts[:0]
	for _, p := range parts {
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
