package llmutil

import (
	"errors"
	"strings"
)

// ExtractJSONObject locates the JSON object inside a model response.
// Extraction models often wrap their output in ```json fences or
// preface it with prose, so fences are stripped and scanning starts at
// the first '{'. Pretty-printed objects put '{' on its own line, so the
// scan keys on the brace alone, not on '{"'. A '{{' pair is prompt
// template syntax echoed back by the model and is skipped.
func ExtractJSONObject(response string) (string, error) {
	s := strings.TrimSpace(response)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			i++
			continue
		}
		return s[i:], nil
	}
	return "", errors.New("no JSON object in response")
}
