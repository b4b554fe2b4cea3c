package extract_test

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/spm-edge/spmedge/internal/extract"
	"github.com/xuri/excelize/v2"
)

func TestExtractPlainText(t *testing.T) {
	res := extract.Bytes(".txt", []byte("hello world"))
	if res.Content != "hello world" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Format != extract.FormatText || res.Quality != 1.0 {
		t.Errorf("format=%q quality=%v", res.Format, res.Quality)
	}
}

func TestExtractPlainTextTrimsWhitespace(t *testing.T) {
	res := extract.Bytes(".txt", []byte("\n  Target is 40% of base.\n\n"))
	if res.Content != "Target is 40% of base." {
		t.Errorf("content = %q", res.Content)
	}
}

func TestExtractMarkdown(t *testing.T) {
	res := extract.Bytes(".md", []byte("# Title\n\nbody"))
	if res.Format != extract.FormatMarkdown {
		t.Errorf("format = %q", res.Format)
	}
}

func TestExtractJSON(t *testing.T) {
	res := extract.Bytes(".json", []byte(`{"plan": "Q3", "year": 2025}`))
	if res.Quality != 1.0 {
		t.Errorf("quality = %v", res.Quality)
	}
	parsed, ok := res.Structure.(map[string]any)
	if !ok {
		t.Fatalf("structure not parsed: %T", res.Structure)
	}
	if parsed["plan"] != "Q3" {
		t.Errorf("structure = %v", parsed)
	}
}

func TestExtractJSONInvalidStaysText(t *testing.T) {
	res := extract.Bytes(".json", []byte("{broken"))
	if res.Structure != nil {
		t.Error("expected nil structure for invalid JSON")
	}
	if res.Content != "{broken" {
		t.Errorf("content = %q", res.Content)
	}
}

func TestExtractUnknownFormat(t *testing.T) {
	res := extract.Bytes(".xyz", []byte{0x01, 0x02})
	if res.Content != "[Unsupported file format: xyz]" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Quality != 0 {
		t.Errorf("quality = %v", res.Quality)
	}
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Plan Overview</w:t></w:r></w:p>
    <w:p><w:r><w:t>This plan covers </w:t></w:r><w:r><w:t>fiscal 2025.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>Tier</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Rate</w:t></w:r></w:p></w:tc></w:tr>
      <w:tr><w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>5%</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`

const coreProps = `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>Comp Plan 2025</dc:title>
  <dc:creator>Sales Ops</dc:creator>
</cp:coreProperties>`

func TestExtractDOCX(t *testing.T) {
	data := buildZip(t, map[string]string{
		"word/document.xml": docxBody,
		"docProps/core.xml": coreProps,
	})
	res := extract.Bytes(".docx", data)
	if res.Error != "" {
		t.Fatalf("extraction error: %s", res.Error)
	}
	if res.Quality != 0.95 {
		t.Errorf("quality = %v", res.Quality)
	}
	if !strings.Contains(res.Content, "# Plan Overview") {
		t.Errorf("heading missing from content:\n%s", res.Content)
	}
	if !strings.Contains(res.Content, "This plan covers fiscal 2025.") {
		t.Errorf("merged runs missing:\n%s", res.Content)
	}
	if len(res.Headings) != 1 || res.Headings[0].Level != 1 {
		t.Errorf("headings = %+v", res.Headings)
	}
	if len(res.Tables) != 1 || len(res.Tables[0].Rows) != 2 {
		t.Fatalf("tables = %+v", res.Tables)
	}
	if res.Tables[0].Rows[1][1] != "5%" {
		t.Errorf("table cell = %q", res.Tables[0].Rows[1][1])
	}
	if res.Metadata["title"] != "Comp Plan 2025" || res.Metadata["author"] != "Sales Ops" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestExtractDOCXMissingBody(t *testing.T) {
	data := buildZip(t, map[string]string{"other.xml": "<x/>"})
	res := extract.Bytes(".docx", data)
	if res.Error == "" {
		t.Fatal("expected extraction error")
	}
	if res.Quality != 0 {
		t.Errorf("quality = %v", res.Quality)
	}
}

const pptxSlide = `<?xml version="1.0"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:nvSpPr><p:cNvPr id="2" name="Title 1"/></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>Q3 Targets</a:t></a:r></a:p></p:txBody></p:sp>
    <p:sp><p:nvSpPr><p:cNvPr id="3" name="Content 2"/></p:nvSpPr>
      <p:txBody><a:p><a:r><a:t>Grow pipeline 20%</a:t></a:r></a:p></p:txBody></p:sp>
  </p:spTree></p:cSld>
</p:sld>`

func TestExtractPPTX(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": pptxSlide,
	})
	res := extract.Bytes(".pptx", data)
	if res.Error != "" {
		t.Fatalf("extraction error: %s", res.Error)
	}
	if len(res.Slides) != 1 {
		t.Fatalf("slides = %d", len(res.Slides))
	}
	s := res.Slides[0]
	if s.Title != "Q3 Targets" {
		t.Errorf("title = %q", s.Title)
	}
	if !strings.Contains(s.Text, "Grow pipeline 20%") {
		t.Errorf("text = %q", s.Text)
	}
	if len(s.Shapes) != 2 {
		t.Errorf("shapes = %v", s.Shapes)
	}
	if !strings.HasPrefix(res.Content, "SLIDE 1: Q3 Targets") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestExtractXLSX(t *testing.T) {
	xf := excelize.NewFile()
	xf.SetCellValue("Sheet1", "A1", "Tier")
	xf.SetCellValue("Sheet1", "B1", "Rate")
	xf.SetCellValue("Sheet1", "A2", "1")
	xf.SetCellValue("Sheet1", "B2", "0.05")
	var buf bytes.Buffer
	if err := xf.Write(&buf); err != nil {
		t.Fatal(err)
	}

	res := extract.Bytes(".xlsx", buf.Bytes())
	if res.Error != "" {
		t.Fatalf("extraction error: %s", res.Error)
	}
	if len(res.Sheets) != 1 {
		t.Fatalf("sheets = %d", len(res.Sheets))
	}
	sheet := res.Sheets[0]
	if sheet.RowNum != 2 || sheet.ColNum != 2 {
		t.Errorf("shape = %dx%d", sheet.RowNum, sheet.ColNum)
	}
	if sheet.Headers[0] != "Tier" {
		t.Errorf("headers = %v", sheet.Headers)
	}
	if !strings.Contains(res.Content, "SHEET: Sheet1") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestExtractHTML(t *testing.T) {
	html := `<html><head><title>Plan Doc</title><script>bad()</script></head>
	<body><h1>Payouts</h1><p>Quarterly payouts apply.</p>
	<table><tr><th>Tier</th><th>Rate</th></tr><tr><td>1</td><td>5%</td></tr></table>
	</body></html>`
	res := extract.Bytes(".html", []byte(html))
	if res.Error != "" {
		t.Fatalf("extraction error: %s", res.Error)
	}
	if res.Metadata["title"] != "Plan Doc" {
		t.Errorf("title = %v", res.Metadata["title"])
	}
	if strings.Contains(res.Content, "bad()") {
		t.Error("script content leaked")
	}
	if len(res.Headings) != 1 || res.Headings[0].Text != "Payouts" {
		t.Errorf("headings = %+v", res.Headings)
	}
	if len(res.Tables) != 1 || res.Tables[0].Rows[1][1] != "5%" {
		t.Errorf("tables = %+v", res.Tables)
	}
}

func TestClassifyPDFByProducer(t *testing.T) {
	tests := []struct {
		producer string
		want     string
	}{
		{"Microsoft PowerPoint 2019", extract.FormatPresentation},
		{"Microsoft Excel", extract.FormatSpreadsheet},
		{"LibreOffice Impress", extract.FormatPresentation},
		{"pdfTeX-1.40", extract.FormatPDF},
	}
	for _, tt := range tests {
		got := extract.ClassifyPDF(tt.producer, "", nil, 0)
		if got != tt.want {
			t.Errorf("ClassifyPDF(%q) = %q, want %q", tt.producer, got, tt.want)
		}
	}
}

func TestClassifyPDFSlideHeuristic(t *testing.T) {
	pages := []extract.Page{
		{Number: 1, Text: "Roadmap\n• item one\n• item two"},
		{Number: 2, Text: "Next steps\n• follow up"},
	}
	got := extract.ClassifyPDF("", "", pages, 16.0/9.0)
	if got != extract.FormatPresentation {
		t.Errorf("ClassifyPDF = %q, want presentation", got)
	}
	// Portrait pages with the same text stay native.
	got = extract.ClassifyPDF("", "", pages, 0.7)
	if got != extract.FormatPDF {
		t.Errorf("ClassifyPDF portrait = %q, want pdf", got)
	}
}

func TestClassifyPDFGridHeuristic(t *testing.T) {
	pages := []extract.Page{
		{Number: 1, Text: "Name\tQ1\tQ2\nAlice\t10\t20\nBob\t30\t40\nCara\t50\t60"},
	}
	got := extract.ClassifyPDF("", "", pages, 0.7)
	if got != extract.FormatSpreadsheet {
		t.Errorf("ClassifyPDF = %q, want spreadsheet", got)
	}
}

func TestPipeRows(t *testing.T) {
	got := extract.PipeRows([][]string{{"a", "b"}, {"1", "2"}})
	want := "| a | b |\n| --- | --- |\n| 1 | 2 |\n"
	if got != want {
		t.Errorf("PipeRows = %q, want %q", got, want)
	}
}
