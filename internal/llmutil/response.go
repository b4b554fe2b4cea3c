package llmutil

import (
	"encoding/json"
	"strings"
)

// RawTextKey is the fallback field used when a model response cannot be
// parsed as JSON. Consumers must tolerate either shape.
const RawTextKey = "raw_text"

// ParseStructured turns a model response into the structured object the
// process stage persists. Markdown fences are stripped and the remainder
// parsed as a JSON object; anything unparseable is wrapped as
// {"raw_text": <response>} so the document still completes.
func ParseStructured(response string) map[string]any {
	stripped, err := ExtractJSONObject(response)
	if err == nil {
		// a decoder tolerates trailing prose after the JSON object
		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(stripped)).Decode(&obj); err == nil && obj != nil {
			return obj
		}
	}
	return map[string]any{RawTextKey: response}
}

// IsRawText reports whether a structured result is the unparsed fallback.
func IsRawText(structured map[string]any) bool {
	if len(structured) != 1 {
		return false
	}
	_, ok := structured[RawTextKey]
	return ok
}
