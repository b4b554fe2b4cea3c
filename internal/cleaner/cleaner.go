// Package cleaner implements the CLEAN stage: rule-driven noise reduction
// over a typed section model.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spm-edge/spmedge/internal/db"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Store is the slice of the state store the cleaner needs.
type Store interface {
	GetDocumentsForStage(ctx context.Context, previous spmedge.Stage, status spmedge.Status, retryFailed bool, limit int) ([]*spmedge.Document, error)
	UpsertPipeline(ctx context.Context, rec *spmedge.PipelineRecord) error
	SetBatchStage(ctx context.Context, id string, stage spmedge.Stage, status spmedge.Status) error
	UpdateDocumentMetadata(ctx context.Context, id string, fields map[string]any) error
	GetCleaningRules(ctx context.Context, typeID string) ([]*spmedge.CleaningRule, error)
	GetSchema(ctx context.Context, typeID string) (*spmedge.Schema, error)
	ReplaceDocumentSections(ctx context.Context, documentID string, rows []db.SectionRow) error
	GetIntSetting(ctx context.Context, key string, def int) int
	GetBoolSetting(ctx context.Context, key string, def bool) bool
}

// RefineFunc optionally polishes rule-cleaned text with a language model.
type RefineFunc func(ctx context.Context, text string) (string, error)

// Runner drives the CLEAN stage.
type Runner struct {
	store Store
	dirs  pipeline.Dirs

	// UseAI forces model-assisted refinement on regardless of the
	// document_cleaner.use_ai setting. Refine must be set for either to
	// take effect.
	UseAI       bool
	RetryFailed bool
	Refine      RefineFunc

	now func() time.Time
}

// New creates a CLEAN stage runner.
func New(store Store, dirs pipeline.Dirs) *Runner {
	return &Runner{store: store, dirs: dirs, now: time.Now}
}

// Stage implements pipeline.StageRunner.
func (r *Runner) Stage() spmedge.Stage { return spmedge.StageClean }

// Run cleans up to limit documents whose load stage completed.
func (r *Runner) Run(ctx context.Context, limit int) (*pipeline.Summary, error) {
	if limit <= 0 {
		limit = r.store.GetIntSetting(ctx, spmedge.SettingBatchSize, spmedge.DefaultBatchSize)
	}
	docs, err := r.store.GetDocumentsForStage(ctx, spmedge.StageLoad, spmedge.StatusCompleted, r.RetryFailed, limit)
	if err != nil {
		return nil, err
	}
	sum := &pipeline.Summary{Stage: spmedge.StageClean}
	if len(docs) == 0 {
		slog.Info("no documents ready for clean")
		return sum, nil
	}
	sum.BatchID = docs[0].BatchID

	useAI := r.UseAI || r.store.GetBoolSetting(ctx, spmedge.SettingCleanerUseAI, false)
	minChars := r.store.GetIntSetting(ctx, spmedge.SettingCleanerMinChars, 1000)

	ruleCache := map[string][]compiledRule{}
	perBatch := map[string]*pipeline.Summary{}
	for _, doc := range docs {
		rules, ok := ruleCache[doc.TypeID]
		if !ok {
			raw, err := r.store.GetCleaningRules(ctx, doc.TypeID)
			if err != nil {
				return sum, err
			}
			rules = CompileRules(raw)
			ruleCache[doc.TypeID] = rules
		}

		err := r.cleanOne(ctx, doc, rules, useAI, minChars)
		bs, ok := perBatch[doc.BatchID]
		if !ok {
			bs = &pipeline.Summary{Stage: spmedge.StageClean, BatchID: doc.BatchID}
			perBatch[doc.BatchID] = bs
		}
		if err != nil {
			slog.Error("❌ clean failed", "doc", doc.ID, "name", doc.Name, "err", err)
			sum.Failed++
			bs.Failed++
		} else {
			sum.Succeeded++
			bs.Succeeded++
		}
	}

	for batchID, bs := range perBatch {
		if err := r.store.SetBatchStage(ctx, batchID, spmedge.StageClean, bs.Status()); err != nil {
			slog.Warn("update batch stage failed", "batch", batchID, "err", err)
		}
	}
	slog.Info("clean finished", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func (r *Runner) cleanOne(ctx context.Context, doc *spmedge.Document, rules []compiledRule, useAI bool, minChars int) error {
	rec := &spmedge.PipelineRecord{
		DocumentID: doc.ID,
		Stage:      spmedge.StageClean,
		BatchID:    doc.BatchID,
		TypeID:     doc.TypeID,
	}
	fail := func(err error) error {
		rec.Status = spmedge.StatusFailed
		rec.Error = err.Error()
		if upErr := r.store.UpsertPipeline(ctx, rec); upErr != nil {
			slog.Warn("record clean failure", "doc", doc.ID, "err", upErr)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("cancelled"))
	}

	content, err := pipeline.ReadStageContent(r.dirs.Stage(spmedge.StageLoad), doc.ID)
	if err != nil {
		if errors.Is(err, spmedge.ErrNoContent) {
			return fail(fmt.Errorf("No content found for %s", doc.Name))
		}
		return fail(err)
	}

	sections := BuildSections(content)
	CleanSections(sections, rules)
	cleaned := Reconstruct(sections)

	if useAI && r.Refine != nil && len(cleaned) >= minChars {
		refined, err := r.Refine(ctx, cleaned)
		if err != nil {
			slog.Warn("ai refinement failed, keeping rule-cleaned text", "doc", doc.ID, "err", err)
		} else if refined != "" {
			cleaned = refined
		}
	}

	now := r.now()
	outName := pipeline.StageFilename(spmedge.StageClean, doc.ID, spmedge.ShortID(doc.BatchID), doc.Name, now, ".txt")
	outPath := filepath.Join(r.dirs.Stage(spmedge.StageClean), outName)
	if err := os.WriteFile(outPath, []byte(cleaned), 0644); err != nil {
		return fail(fmt.Errorf("write cleaned artifact: %w", err))
	}

	meta := map[string]any{
		"cleaned_length": len(cleaned),
		"section_count":  len(Flatten(sections)),
		"clean_artifact": outName,
	}

	schema, err := r.store.GetSchema(ctx, doc.TypeID)
	if err != nil {
		slog.Warn("schema lookup failed", "doc", doc.ID, "err", err)
	} else if components := ExtractComponents(sections, schema); components != nil {
		meta["spm_components"] = components
	}

	if err := r.store.UpdateDocumentMetadata(ctx, doc.ID, meta); err != nil {
		return fail(err)
	}

	// section rows are best-effort; the cleaned artifact is the durable output
	if err := r.persistSections(ctx, doc.ID, sections); err != nil {
		slog.Warn("persist sections failed", "doc", doc.ID, "err", err)
	}

	rec.Status = spmedge.StatusCompleted
	if err := r.store.UpsertPipeline(ctx, rec); err != nil {
		return fail(err)
	}
	slog.Debug("cleaned document", "doc", doc.ID, "length", len(cleaned))
	return nil
}

func (r *Runner) persistSections(ctx context.Context, docID string, sections []*spmedge.Section) error {
	flat := Flatten(sections)
	rows := make([]db.SectionRow, 0, len(flat))
	for i, s := range flat {
		rows = append(rows, db.SectionRow{
			DocumentID:    docID,
			Position:      i,
			Kind:          s.Kind,
			Level:         s.Level,
			Category:      s.Category,
			CleanedLength: len(s.Cleaned),
		})
	}
	return r.store.ReplaceDocumentSections(ctx, docID, rows)
}
