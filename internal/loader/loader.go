// Package loader implements the LOAD stage: it turns registered source
// files into canonical extraction artifacts.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spm-edge/spmedge/internal/extract"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Store is the slice of the state store the loader needs.
type Store interface {
	GetDocumentsForStage(ctx context.Context, previous spmedge.Stage, status spmedge.Status, retryFailed bool, limit int) ([]*spmedge.Document, error)
	UpsertPipeline(ctx context.Context, rec *spmedge.PipelineRecord) error
	UpdateDocumentMetadata(ctx context.Context, id string, fields map[string]any) error
	SetBatchStage(ctx context.Context, id string, stage spmedge.Stage, status spmedge.Status) error
	GetIntSetting(ctx context.Context, key string, def int) int
}

// Runner drives the LOAD stage.
type Runner struct {
	store Store
	dirs  pipeline.Dirs

	// Format selects the artifact serialization: json (default), text,
	// or markdown. RetryFailed re-admits documents whose load previously
	// failed.
	Format      string
	RetryFailed bool

	now func() time.Time
}

// New creates a LOAD stage runner.
func New(store Store, dirs pipeline.Dirs) *Runner {
	return &Runner{store: store, dirs: dirs, Format: "json", now: time.Now}
}

// Stage implements pipeline.StageRunner.
func (r *Runner) Stage() spmedge.Stage { return spmedge.StageLoad }

// Run extracts up to limit documents whose input stage completed. A zero
// limit falls back to the batch.size setting.
func (r *Runner) Run(ctx context.Context, limit int) (*pipeline.Summary, error) {
	if limit <= 0 {
		limit = r.store.GetIntSetting(ctx, spmedge.SettingBatchSize, spmedge.DefaultBatchSize)
	}
	docs, err := r.store.GetDocumentsForStage(ctx, spmedge.StageInput, spmedge.StatusCompleted, r.RetryFailed, limit)
	if err != nil {
		return nil, err
	}
	sum := &pipeline.Summary{Stage: spmedge.StageLoad}
	if len(docs) == 0 {
		slog.Info("no documents ready for load")
		return sum, nil
	}
	sum.BatchID = docs[0].BatchID

	workers := r.store.GetIntSetting(ctx, spmedge.SettingWorkers, 1)
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	perBatch := map[string]*pipeline.Summary{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			err := r.loadOne(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			bs, ok := perBatch[doc.BatchID]
			if !ok {
				bs = &pipeline.Summary{Stage: spmedge.StageLoad, BatchID: doc.BatchID}
				perBatch[doc.BatchID] = bs
			}
			if err != nil {
				slog.Error("❌ load failed", "doc", doc.ID, "name", doc.Name, "err", err)
				sum.Failed++
				bs.Failed++
			} else {
				sum.Succeeded++
				bs.Succeeded++
			}
			return nil
		})
	}
	g.Wait()

	for batchID, bs := range perBatch {
		if err := r.store.SetBatchStage(ctx, batchID, spmedge.StageLoad, bs.Status()); err != nil {
			slog.Warn("update batch stage failed", "batch", batchID, "err", err)
		}
	}
	slog.Info("load finished", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

// loadOne extracts a single document and records the outcome.
func (r *Runner) loadOne(ctx context.Context, doc *spmedge.Document) error {
	rec := &spmedge.PipelineRecord{
		DocumentID: doc.ID,
		Stage:      spmedge.StageLoad,
		BatchID:    doc.BatchID,
		TypeID:     doc.TypeID,
	}
	fail := func(err error) error {
		rec.Status = spmedge.StatusFailed
		rec.Error = err.Error()
		if upErr := r.store.UpsertPipeline(ctx, rec); upErr != nil {
			slog.Warn("record load failure", "doc", doc.ID, "err", upErr)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("cancelled"))
	}

	src := findSource(r.dirs, doc)
	if src == "" {
		return fail(fmt.Errorf("source file not found for %s", doc.Name))
	}

	res, err := extract.File(src)
	if err != nil {
		return fail(err)
	}
	// a parser failure with no recovered text fails the document; partial
	// text still advances with the error captured in the artifact
	if res.Error != "" && res.Content == "" {
		return fail(fmt.Errorf("extraction: %s", res.Error))
	}

	now := r.now()
	artifact := buildArtifact(doc.ID, doc.Name, doc.OriginalName, doc.FileType, res, now)
	data, ext, err := artifact.Render(r.Format)
	if err != nil {
		return fail(err)
	}

	outName := pipeline.StageFilename(spmedge.StageLoad, doc.ID, spmedge.ShortID(doc.BatchID), doc.Name, now, ext)
	outPath := filepath.Join(r.dirs.Stage(spmedge.StageLoad), outName)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fail(fmt.Errorf("write artifact: %w", err))
	}

	if doc.Name != doc.OriginalName {
		backup := filepath.Join(r.dirs.Stage(spmedge.StageLoad), "original_"+doc.OriginalName)
		if src != backup {
			if err := copyFile(src, backup); err != nil {
				slog.Warn("backup original failed", "doc", doc.ID, "err", err)
			}
		}
	}

	meta := map[string]any{
		"extraction_method":  res.Method,
		"extraction_quality": res.Quality,
		"needs_ocr":          res.NeedsOCR,
		"detected_format":    res.Format,
		"detected_type":      artifact.RAGDocument.DocType,
		"type_confidence":    artifact.RAGDocument.Confidence,
		"word_count":         artifact.Stats.WordCount,
		"chunk_count":        artifact.Stats.ChunkCount,
		"load_artifact":      outName,
	}
	if res.Error != "" {
		meta["extraction_error"] = res.Error
	}
	if err := r.store.UpdateDocumentMetadata(ctx, doc.ID, meta); err != nil {
		return fail(err)
	}

	rec.Status = spmedge.StatusCompleted
	if err := r.store.UpsertPipeline(ctx, rec); err != nil {
		return fail(err)
	}
	slog.Debug("loaded document", "doc", doc.ID, "method", res.Method, "quality", res.Quality)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return out.Close()
}
