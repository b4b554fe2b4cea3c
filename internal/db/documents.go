package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// RegisterDocument inserts a new document row. A unique-constraint hit on
// the original name maps to spmedge.ErrDuplicateOriginal.
func (d *DB) RegisterDocument(ctx context.Context, doc *spmedge.Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if doc.Metadata == nil {
		metaJSON = []byte("{}")
	}
	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO documents (id, name, original_name, type_id, batch_id, size, file_type, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.Name, doc.OriginalName, doc.TypeID, doc.BatchID, doc.Size, doc.FileType, metaJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("register document %q: %w", doc.OriginalName, spmedge.ErrDuplicateOriginal)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (d *DB) GetDocument(ctx context.Context, id string) (*spmedge.Document, error) {
	doc := &spmedge.Document{}
	var metaJSON []byte
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, original_name, type_id, batch_id, size, file_type, metadata, created_at, updated_at
		 FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Name, &doc.OriginalName, &doc.TypeID, &doc.BatchID,
		&doc.Size, &doc.FileType, &metaJSON, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, spmedge.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	json.Unmarshal(metaJSON, &doc.Metadata)
	return doc, nil
}

// UpdateDocumentMetadata merges fields into a document's metadata map.
func (d *DB) UpdateDocumentMetadata(ctx context.Context, id string, fields map[string]any) error {
	doc, err := d.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		doc.Metadata[k] = v
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = d.Pool.ExecContext(ctx,
		`UPDATE documents SET metadata = $1, updated_at = $2 WHERE id = $3`,
		metaJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}
	return nil
}

// ListDocumentsByBatch returns a batch's documents ordered by insertion time.
func (d *DB) ListDocumentsByBatch(ctx context.Context, batchID string) ([]*spmedge.Document, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, name, original_name, type_id, batch_id, size, file_type, metadata, created_at, updated_at
		 FROM documents WHERE batch_id = $1 ORDER BY created_at`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// GetDocumentsForStage returns up to limit documents whose record at
// previous stage has the given status and whose successor stage has no
// record yet (retryFailed additionally admits failed successor records).
// Ordered by insertion time for fairness.
func (d *DB) GetDocumentsForStage(ctx context.Context, previous spmedge.Stage, status spmedge.Status, retryFailed bool, limit int) ([]*spmedge.Document, error) {
	next := previous.Next()
	if next == "" {
		return nil, fmt.Errorf("stage %s has no successor", previous)
	}
	if limit <= 0 {
		limit = spmedge.DefaultBatchSize
	}

	exclude := `NOT EXISTS (
			SELECT 1 FROM pipeline_status n
			WHERE n.document_id = d.id AND n.stage = $3
		 )`
	if retryFailed {
		exclude = `NOT EXISTS (
			SELECT 1 FROM pipeline_status n
			WHERE n.document_id = d.id AND n.stage = $3 AND n.status <> 'failed'
		 )`
	}

	query := fmt.Sprintf(
		`SELECT d.id, d.name, d.original_name, d.type_id, d.batch_id, d.size, d.file_type, d.metadata, d.created_at, d.updated_at
		 FROM documents d
		 JOIN pipeline_status p ON p.document_id = d.id AND p.stage = $1 AND p.status = $2
		 WHERE %s
		 ORDER BY d.created_at
		 LIMIT $4`, exclude)

	rows, err := d.Pool.QueryContext(ctx, query, string(previous), string(status), string(next), limit)
	if err != nil {
		return nil, fmt.Errorf("select documents for stage %s: %w", next, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]*spmedge.Document, error) {
	var result []*spmedge.Document
	for rows.Next() {
		doc := &spmedge.Document{}
		var metaJSON []byte
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.OriginalName, &doc.TypeID, &doc.BatchID,
			&doc.Size, &doc.FileType, &metaJSON, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		json.Unmarshal(metaJSON, &doc.Metadata)
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return result, nil
}
