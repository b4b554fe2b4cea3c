package extract

import (
	"encoding/json"
	"strings"
)

// extractPlain wraps text content (txt, markdown, csv), trimmed of
// surrounding whitespace.
func extractPlain(format string, data []byte) *Result {
	return &Result{
		Content: strings.TrimSpace(string(data)),
		Format:  format,
		Method:  "direct",
		Quality: 1.0,
	}
}

// extractJSON reads JSON content directly and additionally exposes the
// parsed structure. Unparseable input stays plain text.
func extractJSON(data []byte) *Result {
	res := extractPlain(FormatJSON, data)
	var parsed any
	if err := json.Unmarshal(data, &parsed); err == nil {
		res.Structure = parsed
	}
	return res
}
