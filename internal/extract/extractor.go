package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File reads path and extracts its content with the extractor matching the
// detected format. Parser failures are captured in Result.Error with
// quality 0 rather than returned: the caller decides whether partial text
// is good enough.
func File(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Bytes(filepath.Ext(path), data), nil
}

// Bytes extracts content from an in-memory document. ext includes the dot
// and is matched case-insensitively.
func Bytes(ext string, data []byte) *Result {
	var res *Result
	var err error

	switch strings.ToLower(ext) {
	case ".pdf":
		res, err = extractPDF(data)
	case ".docx":
		res, err = extractDOCX(data)
	case ".xlsx":
		res, err = extractXLSX(data)
	case ".pptx":
		res, err = extractPPTX(data)
	case ".txt":
		res = extractPlain(FormatText, data)
	case ".md", ".markdown":
		res = extractPlain(FormatMarkdown, data)
	case ".csv":
		res = extractPlain(FormatCSV, data)
	case ".json":
		res = extractJSON(data)
	case ".html", ".htm":
		res, err = extractHTML(data)
	default:
		return &Result{
			Content: fmt.Sprintf("[Unsupported file format: %s]", strings.TrimPrefix(strings.ToLower(ext), ".")),
			Format:  FormatUnknown,
			Method:  "none",
			Quality: 0,
		}
	}

	if err != nil {
		if res == nil {
			res = &Result{Format: strings.TrimPrefix(strings.ToLower(ext), "."), Method: "failed"}
		}
		res.Error = err.Error()
		res.Quality = 0
	}
	return res
}
