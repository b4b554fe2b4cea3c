package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// extractDOCX reads a DOCX file (ZIP+XML): paragraphs with their style
// names, headings with levels, tables, and core properties.
func extractDOCX(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx zip: %w", err)
	}

	res := &Result{
		Format:   FormatDOCX,
		Method:   "docx_xml",
		Quality:  0.95,
		Metadata: map[string]any{},
	}

	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			err = parseDOCXBody(rc, res)
			rc.Close()
			if err != nil {
				return nil, err
			}
		case "docProps/core.xml":
			rc, err := f.Open()
			if err == nil {
				parseCoreProps(rc, res.Metadata)
				rc.Close()
			}
		}
	}

	if res.Content == "" && len(res.Tables) == 0 {
		return nil, fmt.Errorf("word/document.xml not found in docx")
	}
	return res, nil
}

// parseDOCXBody walks the document body collecting paragraph text (with
// style names), headings, and tables. Table-cell paragraphs stay inside
// their cell and the table is re-rendered pipe-delimited in the content.
func parseDOCXBody(r io.Reader, res *Result) error {
	decoder := xml.NewDecoder(r)

	var sb strings.Builder
	var para strings.Builder
	var paraStyle string

	var table [][]string
	var row []string
	var cell strings.Builder
	tableDepth := 0

	flushPara := func() {
		text := strings.TrimSpace(para.String())
		para.Reset()
		style := paraStyle
		paraStyle = ""
		if text == "" {
			return
		}
		if tableDepth > 0 {
			if cell.Len() > 0 {
				cell.WriteString(" ")
			}
			cell.WriteString(text)
			return
		}
		if level := headingLevel(style); level > 0 {
			res.Headings = append(res.Headings, Heading{Level: level, Text: text})
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteString(" ")
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break // keep whatever was parsed
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" {
						paraStyle = a.Value
					}
				}
			case "t":
				var content struct {
					Text string `xml:",chardata"`
				}
				if err := decoder.DecodeElement(&content, &t); err == nil {
					para.WriteString(content.Text)
				}
			case "tab":
				para.WriteString("\t")
			case "br":
				para.WriteString("\n")
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth > 0 {
					row = nil
				}
			case "tc":
				if tableDepth > 0 {
					cell.Reset()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				flushPara()
			case "tc":
				if tableDepth > 0 {
					row = append(row, strings.TrimSpace(cell.String()))
					cell.Reset()
				}
			case "tr":
				if tableDepth > 0 && len(row) > 0 {
					table = append(table, row)
					row = nil
				}
			case "tbl":
				if tableDepth > 0 {
					tableDepth--
					if tableDepth == 0 && len(table) > 0 {
						res.Tables = append(res.Tables, Table{Rows: table})
						sb.WriteString(PipeRows(table))
						table = nil
					}
				}
			}
		}
	}

	res.Content = strings.TrimSpace(sb.String())
	return nil
}

// headingLevel maps DOCX paragraph styles like "Heading1"/"Heading 2" to
// a level; 0 means not a heading.
func headingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	if !strings.HasPrefix(s, "heading") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "heading"))
	if err != nil || n < 1 {
		return 0
	}
	if n > 9 {
		n = 9
	}
	return n
}

// parseCoreProps reads docProps/core.xml (shared by DOCX, XLSX and PPTX).
func parseCoreProps(r io.Reader, meta map[string]any) {
	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if err != nil {
			return
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var field string
		switch se.Name.Local {
		case "title":
			field = "title"
		case "creator":
			field = "author"
		case "subject":
			field = "subject"
		case "lastModifiedBy":
			field = "last_modified_by"
		case "created":
			field = "created"
		case "modified":
			field = "modified"
		default:
			continue
		}
		var content struct {
			Text string `xml:",chardata"`
		}
		if err := decoder.DecodeElement(&content, &se); err == nil {
			if s := strings.TrimSpace(content.Text); s != "" {
				meta[field] = s
			}
		}
	}
}
