package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// ReadStageContent locates the newest artifact for a document in a stage
// directory and returns its textual content. JSON artifacts contribute
// their top-level content field; a nested content payload is unwrapped
// one level, so two levels of nesting resolve to the innermost value.
func ReadStageContent(dir, docID string) (string, error) {
	path := FindStageFile(dir, docID)
	if path == "" {
		return "", fmt.Errorf("stage content for %s: %w", spmedge.ShortID(docID), spmedge.ErrNoContent)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := ExtractContent(data)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("artifact %s: %w", path, spmedge.ErrNoContent)
	}
	return content, nil
}

// ExtractContent pulls the text out of an artifact payload. Non-JSON data
// is returned as-is. JSON objects yield their "content" field; when that
// field holds a serialized object with its own "content", the inner value
// wins. Unwrapping is bounded to one level.
func ExtractContent(data []byte) string {
	text := string(data)
	outer := contentField(data)
	if outer == "" {
		return text
	}
	if inner := contentField([]byte(outer)); inner != "" {
		return inner
	}
	return outer
}

// contentField returns the top-level "content" string of a JSON object,
// or "" when data is not such an object.
func contentField(data []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	raw, ok := obj["content"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
