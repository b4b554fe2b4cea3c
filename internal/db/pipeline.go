package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// UpsertPipeline inserts or updates the (document, stage) record.
// Idempotent: repeated calls update status, error and updated_at in place.
func (d *DB) UpsertPipeline(ctx context.Context, rec *spmedge.PipelineRecord) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var errMsg any
	if rec.Error != "" {
		errMsg = rec.Error
	}
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO pipeline_status (document_id, stage, status, error_message, batch_id, type_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (document_id, stage) DO UPDATE SET
		   status = EXCLUDED.status,
		   error_message = EXCLUDED.error_message,
		   batch_id = EXCLUDED.batch_id,
		   type_id = EXCLUDED.type_id,
		   updated_at = EXCLUDED.updated_at`,
		rec.DocumentID, string(rec.Stage), string(rec.Status), errMsg, rec.BatchID, rec.TypeID, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pipeline %s/%s: %w", rec.DocumentID, rec.Stage, err)
	}
	return nil
}

// GetPipelineRecord returns the record for (document, stage), or ErrNotFound.
func (d *DB) GetPipelineRecord(ctx context.Context, documentID string, stage spmedge.Stage) (*spmedge.PipelineRecord, error) {
	rec := &spmedge.PipelineRecord{}
	var st, status string
	var errMsg sql.NullString
	err := d.Pool.QueryRowContext(ctx,
		`SELECT document_id, stage, status, error_message, batch_id, type_id, updated_at
		 FROM pipeline_status WHERE document_id = $1 AND stage = $2`,
		documentID, string(stage),
	).Scan(&rec.DocumentID, &st, &status, &errMsg, &rec.BatchID, &rec.TypeID, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pipeline %s/%s: %w", documentID, stage, spmedge.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline record: %w", err)
	}
	rec.Stage = spmedge.Stage(st)
	rec.Status = spmedge.Status(status)
	rec.Error = errMsg.String
	return rec, nil
}

// ListPipelineRecords returns every record for a document in stage order.
func (d *DB) ListPipelineRecords(ctx context.Context, documentID string) ([]*spmedge.PipelineRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT document_id, stage, status, error_message, batch_id, type_id, updated_at
		 FROM pipeline_status WHERE document_id = $1`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pipeline records: %w", err)
	}
	defer rows.Close()

	byStage := map[spmedge.Stage]*spmedge.PipelineRecord{}
	for rows.Next() {
		rec := &spmedge.PipelineRecord{}
		var st, status string
		var errMsg sql.NullString
		if err := rows.Scan(&rec.DocumentID, &st, &status, &errMsg, &rec.BatchID, &rec.TypeID, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline record: %w", err)
		}
		rec.Stage = spmedge.Stage(st)
		rec.Status = spmedge.Status(status)
		rec.Error = errMsg.String
		byStage[rec.Stage] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline records: %w", err)
	}

	var result []*spmedge.PipelineRecord
	for _, s := range spmedge.Stages {
		if rec, ok := byStage[s]; ok {
			result = append(result, rec)
		}
	}
	return result, nil
}

// ResetStage deletes a stage's pipeline records, scoped to a batch when
// batchID is non-empty. Predecessor stage data is untouched.
func (d *DB) ResetStage(ctx context.Context, stage spmedge.Stage, batchID string) (int64, error) {
	var res sql.Result
	var err error
	if batchID != "" {
		res, err = d.Pool.ExecContext(ctx,
			`DELETE FROM pipeline_status WHERE stage = $1 AND batch_id = $2`,
			string(stage), batchID,
		)
	} else {
		res, err = d.Pool.ExecContext(ctx,
			`DELETE FROM pipeline_status WHERE stage = $1`, string(stage),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("reset stage %s: %w", stage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CleanupOrphans deletes documents with no pipeline records and batches
// with no documents. Runs in a single transaction.
func (d *DB) CleanupOrphans(ctx context.Context) (docsDeleted, batchesDeleted int64, err error) {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM documents d
		 WHERE NOT EXISTS (SELECT 1 FROM pipeline_status p WHERE p.document_id = d.id)`,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("delete orphan documents: %w", err)
	}
	docsDeleted, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM batches b
		 WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.batch_id = b.id)`,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("delete orphan batches: %w", err)
	}
	batchesDeleted, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit cleanup: %w", err)
	}
	return docsDeleted, batchesDeleted, nil
}
