package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// CreateBatch inserts a new batch with status processing.
func (d *DB) CreateBatch(ctx context.Context, b *spmedge.Batch) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO batches (id, name, document_count, status, stage, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Name, b.DocumentCount, string(b.Status), string(b.Stage), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (d *DB) GetBatch(ctx context.Context, id string) (*spmedge.Batch, error) {
	b := &spmedge.Batch{}
	var status, stage string
	var completedAt sql.NullTime
	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, document_count, status, stage, created_at, completed_at
		 FROM batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.DocumentCount, &status, &stage, &b.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch %s: %w", id, spmedge.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	b.Status = spmedge.Status(status)
	b.Stage = spmedge.Stage(stage)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return b, nil
}

// SetBatchStage records the stage a batch most recently ran and its
// outcome there. Unlike FinalizeBatch it leaves completed_at alone.
func (d *DB) SetBatchStage(ctx context.Context, id string, stage spmedge.Stage, status spmedge.Status) error {
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE batches SET stage = $1, status = $2 WHERE id = $3`,
		string(stage), string(status), id,
	)
	if err != nil {
		return fmt.Errorf("set batch stage: %w", err)
	}
	return nil
}

// FinalizeBatch records a batch's terminal status and completion time.
func (d *DB) FinalizeBatch(ctx context.Context, id string, status spmedge.Status) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE batches SET status = $1, completed_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch %s: %w", id, spmedge.ErrNotFound)
	}
	return nil
}

// ListBatches returns all batches, newest first.
func (d *DB) ListBatches(ctx context.Context) ([]*spmedge.Batch, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, name, document_count, status, stage, created_at, completed_at
		 FROM batches ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var result []*spmedge.Batch
	for rows.Next() {
		b := &spmedge.Batch{}
		var status, stage string
		var completedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.DocumentCount, &status, &stage, &b.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Status = spmedge.Status(status)
		b.Stage = spmedge.Stage(stage)
		if completedAt.Valid {
			t := completedAt.Time
			b.CompletedAt = &t
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return result, nil
}

// StageCount is one row of a batch status report.
type StageCount struct {
	Stage     spmedge.Stage `json:"stage"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Pending   int           `json:"processing"`
}

// BatchStageCounts returns per-stage pipeline-record counts for a batch.
func (d *DB) BatchStageCounts(ctx context.Context, batchID string) ([]StageCount, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT stage, status, COUNT(*) FROM pipeline_status
		 WHERE batch_id = $1 GROUP BY stage, status`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("batch stage counts: %w", err)
	}
	defer rows.Close()

	byStage := map[spmedge.Stage]*StageCount{}
	for rows.Next() {
		var stage, status string
		var n int
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		sc, ok := byStage[spmedge.Stage(stage)]
		if !ok {
			sc = &StageCount{Stage: spmedge.Stage(stage)}
			byStage[spmedge.Stage(stage)] = sc
		}
		switch spmedge.Status(status) {
		case spmedge.StatusCompleted:
			sc.Completed = n
		case spmedge.StatusFailed:
			sc.Failed = n
		default:
			sc.Pending = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage counts: %w", err)
	}

	// Emit in pipeline order; stages without records are skipped.
	var result []StageCount
	for _, s := range spmedge.Stages {
		if sc, ok := byStage[s]; ok {
			result = append(result, *sc)
		}
	}
	return result, nil
}
