package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// CreateDocumentType registers a document type with its prompt and schema.
// Re-registering a name updates the prompt and schema in place.
func (d *DB) CreateDocumentType(ctx context.Context, t *spmedge.DocumentType, schema *spmedge.Schema) error {
	var schemaJSON any
	if schema != nil {
		b, err := json.Marshal(schema.Fields)
		if err != nil {
			return fmt.Errorf("marshal schema: %w", err)
		}
		schemaJSON = b
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO document_types (id, name, prompt, schema, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET prompt = EXCLUDED.prompt, schema = EXCLUDED.schema`,
		t.ID, t.Name, t.Prompt, schemaJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert document type: %w", err)
	}
	return nil
}

// GetDocumentTypeByName resolves a type by its name (e.g. "comp_plan").
func (d *DB) GetDocumentTypeByName(ctx context.Context, name string) (*spmedge.DocumentType, error) {
	t := &spmedge.DocumentType{}
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, prompt, created_at FROM document_types WHERE name = $1`, name,
	).Scan(&t.ID, &t.Name, &t.Prompt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document type %q: %w", name, spmedge.ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("get document type: %w", err)
	}
	return t, nil
}

// GetDocumentType resolves a type by ID.
func (d *DB) GetDocumentType(ctx context.Context, id string) (*spmedge.DocumentType, error) {
	t := &spmedge.DocumentType{}
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, prompt, created_at FROM document_types WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Prompt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document type %s: %w", id, spmedge.ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("get document type: %w", err)
	}
	return t, nil
}

// ListDocumentTypes returns all registered types ordered by name.
func (d *DB) ListDocumentTypes(ctx context.Context) ([]*spmedge.DocumentType, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, name, prompt, created_at FROM document_types ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	defer rows.Close()

	var result []*spmedge.DocumentType
	for rows.Next() {
		t := &spmedge.DocumentType{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Prompt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document types: %w", err)
	}
	return result, nil
}

// GetSchema returns the schema registered for a type ID, or (nil, nil)
// when the type has no schema.
func (d *DB) GetSchema(ctx context.Context, typeID string) (*spmedge.Schema, error) {
	var raw []byte
	err := d.Pool.QueryRowContext(ctx,
		`SELECT schema FROM document_types WHERE id = $1`, typeID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document type %s: %w", typeID, spmedge.ErrUnknownType)
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return spmedge.ParseSchema(typeID, raw)
}

// GetPrompt returns the AI prompt registered for a type ID ("" if unset).
func (d *DB) GetPrompt(ctx context.Context, typeID string) (string, error) {
	var prompt string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT prompt FROM document_types WHERE id = $1`, typeID,
	).Scan(&prompt)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("document type %s: %w", typeID, spmedge.ErrUnknownType)
	}
	if err != nil {
		return "", fmt.Errorf("get prompt: %w", err)
	}
	return prompt, nil
}
