package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractHTML parses an HTML document with goquery: title, headings,
// paragraph text, and tables rendered pipe-delimited.
func extractHTML(data []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &Result{
		Format:   FormatHTML,
		Method:   "html_goquery",
		Quality:  0.9,
		Metadata: map[string]any{},
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		res.Metadata["title"] = title
	}

	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	doc.Find("h1, h2, h3, p, li, table").Each(func(_ int, s *goquery.Selection) {
		node := goquery.NodeName(s)
		switch node {
		case "h1", "h2", "h3":
			level, _ := strconv.Atoi(node[1:])
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			res.Headings = append(res.Headings, Heading{Level: level, Text: text})
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteString(" ")
			sb.WriteString(text)
			sb.WriteString("\n")
		case "p", "li":
			if text := strings.TrimSpace(s.Text()); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		case "table":
			var rows [][]string
			s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
				var cells []string
				tr.Find("th, td").Each(func(_ int, td *goquery.Selection) {
					cells = append(cells, strings.TrimSpace(td.Text()))
				})
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			})
			if len(rows) > 0 {
				res.Tables = append(res.Tables, Table{Rows: rows})
				sb.WriteString(PipeRows(rows))
			}
		}
	})

	res.Content = strings.TrimSpace(sb.String())
	return res, nil
}
