package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Watcher runs a pipeline job on a cron schedule.
type Watcher struct {
	cron *cron.Cron
	ctx  context.Context
}

// NewWatcher schedules job on the given cron spec (standard five-field
// syntax). The job receives the context later passed to Start.
func NewWatcher(spec string, job func(ctx context.Context)) (*Watcher, error) {
	w := &Watcher{cron: cron.New(), ctx: context.Background()}
	_, err := w.cron.AddFunc(spec, func() { job(w.ctx) })
	if err != nil {
		return nil, fmt.Errorf("bad schedule %q: %w", spec, err)
	}
	return w, nil
}

// Start begins the schedule and blocks until ctx is cancelled, then waits
// for any in-flight run to finish.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx = ctx
	w.cron.Start()
	<-ctx.Done()
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
}
