package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// SectionRow is the persisted form of one cleaned section.
type SectionRow struct {
	DocumentID    string
	Position      int
	Kind          spmedge.SectionKind
	Level         int
	Category      string
	CleanedLength int
}

// ReplaceDocumentSections replaces a document's section rows in one
// transaction. Called by the clean stage after reconstruction.
func (d *DB) ReplaceDocumentSections(ctx context.Context, documentID string, rows []SectionRow) error {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sections tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_sections WHERE document_id = $1`, documentID,
	); err != nil {
		return fmt.Errorf("delete old sections: %w", err)
	}

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_sections (document_id, position, kind, level, category, cleaned_length)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			documentID, r.Position, string(r.Kind), r.Level, r.Category, r.CleanedLength,
		); err != nil {
			return fmt.Errorf("insert section %d: %w", r.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sections: %w", err)
	}
	return nil
}

// SaveProcessedDocument persists the structured LLM output for a document.
// Overwrites any previous result.
func (d *DB) SaveProcessedDocument(ctx context.Context, documentID string, structured map[string]any) error {
	data, err := json.Marshal(structured)
	if err != nil {
		return fmt.Errorf("marshal processed data: %w", err)
	}
	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO processed_documents (document_id, data) VALUES ($1, $2)
		 ON CONFLICT (document_id) DO UPDATE SET data = EXCLUDED.data, created_at = NOW()`,
		documentID, data,
	)
	if err != nil {
		return fmt.Errorf("save processed document: %w", err)
	}
	return nil
}

// GetProcessedDocument returns the structured result for a document.
func (d *DB) GetProcessedDocument(ctx context.Context, documentID string) (map[string]any, error) {
	var raw []byte
	err := d.Pool.QueryRowContext(ctx,
		`SELECT data FROM processed_documents WHERE document_id = $1`, documentID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("processed document %s: %w", documentID, spmedge.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get processed document: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal processed data: %w", err)
	}
	return result, nil
}
