package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Summary reports one stage run.
type Summary struct {
	Stage     spmedge.Stage
	BatchID   string
	Succeeded int
	Failed    int
}

// Status derives the batch status from the counts: completed when every
// document succeeded, partial when at least one did, failed when none did.
func (s Summary) Status() spmedge.Status {
	switch {
	case s.Failed == 0:
		return spmedge.StatusCompleted
	case s.Succeeded > 0:
		return spmedge.StatusPartial
	default:
		return spmedge.StatusFailed
	}
}

// StageRunner is one invokable pipeline stage. Stages never call each
// other; the orchestrator composes them.
type StageRunner interface {
	Stage() spmedge.Stage
	Run(ctx context.Context, limit int) (*Summary, error)
}

// Orchestrator runs stages in pipeline order for a document type.
type Orchestrator struct {
	runners []StageRunner
}

// NewOrchestrator composes runners; they are sorted into pipeline order.
func NewOrchestrator(runners ...StageRunner) *Orchestrator {
	ordered := make([]StageRunner, 0, len(runners))
	for _, s := range spmedge.Stages {
		for _, r := range runners {
			if r.Stage() == s {
				ordered = append(ordered, r)
			}
		}
	}
	return &Orchestrator{runners: ordered}
}

// RunAll drives every registered stage in order. A stage-level error stops
// the sequence; per-document failures inside a stage do not.
func (o *Orchestrator) RunAll(ctx context.Context, limit int) ([]*Summary, error) {
	var summaries []*Summary
	for _, r := range o.runners {
		if err := ctx.Err(); err != nil {
			return summaries, fmt.Errorf("run-all cancelled: %w", err)
		}
		slog.Info("running stage", "stage", r.Stage())
		sum, err := r.Run(ctx, limit)
		if err != nil {
			return summaries, fmt.Errorf("stage %s: %w", r.Stage(), err)
		}
		if sum != nil {
			summaries = append(summaries, sum)
			slog.Info("stage finished", "stage", sum.Stage, "batch", sum.BatchID,
				"succeeded", sum.Succeeded, "failed", sum.Failed, "status", sum.Status())
		}
	}
	return summaries, nil
}
