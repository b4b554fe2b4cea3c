package spmedge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SchemaNode describes one field of a document-type schema. A node is an
// object (Fields), a list (Items), or a scalar leaf (Type).
type SchemaNode struct {
	Type   string                 `json:"type,omitempty"` // "string", "number", "boolean", "date"
	Fields map[string]*SchemaNode `json:"fields,omitempty"`
	Items  *SchemaNode            `json:"items,omitempty"`
}

// Schema is the typed shape registered for a document type. It guides the
// cleaner's SPM extraction and the processor's output shape.
type Schema struct {
	TypeID string                 `json:"type_id"`
	Fields map[string]*SchemaNode `json:"fields"`
}

// ParseSchema decodes a stored schema definition.
func ParseSchema(typeID string, raw []byte) (*Schema, error) {
	var fields map[string]*SchemaNode
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse schema for type %s: %w", typeID, err)
	}
	return &Schema{TypeID: typeID, Fields: fields}, nil
}

// JSON renders the schema's field tree as compact JSON, suitable for
// embedding in an LLM prompt.
func (s *Schema) JSON() string {
	b, err := json.Marshal(s.Fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// TopLevelKeys returns the schema's top-level field names sorted.
func (s *Schema) TopLevelKeys() []string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Outline renders a one-line-per-field summary used in logs.
func (s *Schema) Outline() string {
	var b strings.Builder
	for i, k := range s.TopLevelKeys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		n := s.Fields[k]
		switch {
		case n == nil:
		case n.Items != nil:
			b.WriteString("[]")
		case len(n.Fields) > 0:
			b.WriteString("{}")
		}
	}
	return b.String()
}
