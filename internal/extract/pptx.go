package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slidePathPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX reads a PPTX file: per-slide title, text blocks, and shape
// names.
func extractPPTX(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pptx zip: %w", err)
	}

	res := &Result{
		Format:   FormatPPTX,
		Method:   "pptx_xml",
		Quality:  0.9,
		Metadata: map[string]any{},
	}

	type numbered struct {
		n int
		f *zip.File
	}
	var slideFiles []numbered
	for _, f := range zr.File {
		if m := slidePathPattern.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slideFiles = append(slideFiles, numbered{n, f})
		} else if f.Name == "docProps/core.xml" {
			rc, err := f.Open()
			if err == nil {
				parseCoreProps(rc, res.Metadata)
				rc.Close()
			}
		}
	}
	if len(slideFiles) == 0 {
		return nil, fmt.Errorf("no slides found in pptx")
	}
	sort.Slice(slideFiles, func(i, j int) bool { return slideFiles[i].n < slideFiles[j].n })

	var sb strings.Builder
	for _, sf := range slideFiles {
		rc, err := sf.f.Open()
		if err != nil {
			continue
		}
		slide := parseSlide(rc, sf.n)
		rc.Close()
		res.Slides = append(res.Slides, slide)

		fmt.Fprintf(&sb, "SLIDE %d: %s\n", slide.Number, slide.Title)
		if slide.Text != "" {
			sb.WriteString(slide.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	res.Metadata["slide_count"] = len(res.Slides)
	res.Content = strings.TrimSpace(sb.String())
	return res, nil
}

// parseSlide collects a slide's text runs and shape names. The first text
// block is taken as the slide title.
func parseSlide(r io.Reader, number int) Slide {
	decoder := xml.NewDecoder(r)
	slide := Slide{Number: number}

	var blocks []string
	var current strings.Builder

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				var content struct {
					Text string `xml:",chardata"`
				}
				if err := decoder.DecodeElement(&content, &t); err == nil {
					current.WriteString(content.Text)
				}
			case "cNvPr":
				for _, a := range t.Attr {
					if a.Name.Local == "name" && a.Value != "" {
						slide.Shapes = append(slide.Shapes, a.Value)
					}
				}
			}
		case xml.EndElement:
			// a:p closes one paragraph of a text body
			if t.Name.Local == "p" {
				if text := strings.TrimSpace(current.String()); text != "" {
					blocks = append(blocks, text)
				}
				current.Reset()
			}
		}
	}
	if text := strings.TrimSpace(current.String()); text != "" {
		blocks = append(blocks, text)
	}

	if len(blocks) > 0 {
		slide.Title = blocks[0]
		slide.Text = strings.Join(blocks[1:], "\n")
	}
	return slide
}
