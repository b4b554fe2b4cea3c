// Package processor implements the PROCESS stage: one rate-limited LLM
// call per document, parameterized by the document type's prompt and
// schema.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spm-edge/spmedge/internal/llmutil"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/provider"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Defaults mirror the pipeline's rate-limit discipline.
const (
	DefaultMinInterval   = 3 * time.Second
	DefaultMaxRetries    = 5
	DefaultBackoffBase   = 2 * time.Second
	DefaultMaxBackoff    = 60 * time.Second
	DefaultMaxContentLen = 15000
	DefaultSubBatchSize  = 2

	systemPrompt   = "You are a structured data extraction assistant."
	genericPrompt  = "Extract the key structured data from the following document and return it as a JSON object."
	truncateMarker = "\n… [content truncated]"

	temperature = 0.1
	maxTokens   = 2000
)

// Store is the slice of the state store the processor needs.
type Store interface {
	GetDocumentsForStage(ctx context.Context, previous spmedge.Stage, status spmedge.Status, retryFailed bool, limit int) ([]*spmedge.Document, error)
	UpsertPipeline(ctx context.Context, rec *spmedge.PipelineRecord) error
	SetBatchStage(ctx context.Context, id string, stage spmedge.Stage, status spmedge.Status) error
	GetPrompt(ctx context.Context, typeID string) (string, error)
	GetSchema(ctx context.Context, typeID string) (*spmedge.Schema, error)
	SaveProcessedDocument(ctx context.Context, documentID string, structured map[string]any) error
	GetIntSetting(ctx context.Context, key string, def int) int
}

// Runner drives the PROCESS stage.
type Runner struct {
	store    Store
	dirs     pipeline.Dirs
	registry *provider.Registry

	// Model is a "provider/model" ID. The remaining fields default to
	// the package constants when zero.
	Model         string
	MinInterval   time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	MaxContentLen int
	SubBatchSize  int
	RetryFailed   bool

	limiter *Limiter
	jitter  func() float64
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// New creates a PROCESS stage runner calling model through registry.
func New(store Store, dirs pipeline.Dirs, registry *provider.Registry, model string) *Runner {
	return &Runner{
		store:         store,
		dirs:          dirs,
		registry:      registry,
		Model:         model,
		MinInterval:   DefaultMinInterval,
		MaxRetries:    DefaultMaxRetries,
		BackoffBase:   DefaultBackoffBase,
		MaxContentLen: DefaultMaxContentLen,
		SubBatchSize:  DefaultSubBatchSize,
		jitter:        func() float64 { return 0.5 + rand.Float64() },
		sleep:         sleepCtx,
		now:           time.Now,
	}
}

// Stage implements pipeline.StageRunner.
func (r *Runner) Stage() spmedge.Stage { return spmedge.StageProcess }

// Run processes up to limit documents whose clean stage completed.
// Documents are grouped into API sub-batches with a one-second pause
// between documents of the same sub-batch.
func (r *Runner) Run(ctx context.Context, limit int) (*pipeline.Summary, error) {
	if limit <= 0 {
		limit = r.store.GetIntSetting(ctx, spmedge.SettingBatchSize, spmedge.DefaultBatchSize)
	}
	docs, err := r.store.GetDocumentsForStage(ctx, spmedge.StageClean, spmedge.StatusCompleted, r.RetryFailed, limit)
	if err != nil {
		return nil, err
	}
	sum := &pipeline.Summary{Stage: spmedge.StageProcess}
	if len(docs) == 0 {
		slog.Info("no documents ready for process")
		return sum, nil
	}
	sum.BatchID = docs[0].BatchID

	if r.limiter == nil {
		r.limiter = NewLimiter(r.MinInterval)
		r.limiter.sleep = r.sleep
		r.limiter.now = r.now
	}
	subBatch := r.SubBatchSize
	if subBatch < 1 {
		subBatch = DefaultSubBatchSize
	}

	perBatch := map[string]*pipeline.Summary{}
	for i, doc := range docs {
		err := r.processOne(ctx, doc)
		bs, ok := perBatch[doc.BatchID]
		if !ok {
			bs = &pipeline.Summary{Stage: spmedge.StageProcess, BatchID: doc.BatchID}
			perBatch[doc.BatchID] = bs
		}
		if err != nil {
			slog.Error("❌ process failed", "doc", doc.ID, "name", doc.Name, "err", err)
			sum.Failed++
			bs.Failed++
		} else {
			sum.Succeeded++
			bs.Succeeded++
		}

		// pause inside a sub-batch to smooth bursts
		if i < len(docs)-1 && (i+1)%subBatch != 0 {
			if err := r.sleep(ctx, time.Second); err != nil {
				break
			}
		}
	}

	for batchID, bs := range perBatch {
		if err := r.store.SetBatchStage(ctx, batchID, spmedge.StageProcess, bs.Status()); err != nil {
			slog.Warn("update batch stage failed", "batch", batchID, "err", err)
		}
	}
	slog.Info("process finished", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func (r *Runner) processOne(ctx context.Context, doc *spmedge.Document) error {
	rec := &spmedge.PipelineRecord{
		DocumentID: doc.ID,
		Stage:      spmedge.StageProcess,
		BatchID:    doc.BatchID,
		TypeID:     doc.TypeID,
	}
	fail := func(err error) error {
		rec.Status = spmedge.StatusFailed
		rec.Error = err.Error()
		if upErr := r.store.UpsertPipeline(ctx, rec); upErr != nil {
			slog.Warn("record process failure", "doc", doc.ID, "err", upErr)
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("cancelled"))
	}

	content, err := pipeline.ReadStageContent(r.dirs.Stage(spmedge.StageClean), doc.ID)
	if err != nil {
		return fail(err)
	}
	if len(content) > r.MaxContentLen {
		content = content[:r.MaxContentLen] + truncateMarker
	}

	prompt, err := r.store.GetPrompt(ctx, doc.TypeID)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = genericPrompt
	}
	schema, err := r.store.GetSchema(ctx, doc.TypeID)
	if err != nil {
		slog.Warn("schema lookup failed", "doc", doc.ID, "err", err)
	}
	if schema != nil {
		prompt += "\n\nReturn your response in the following JSON schema: " + schema.JSON()
	}

	response, err := r.chatWithRetry(ctx, prompt, content)
	if err != nil {
		return fail(err)
	}

	structured := llmutil.ParseStructured(response)
	if llmutil.IsRawText(structured) {
		slog.Warn("response was not valid JSON, storing raw text", "doc", doc.ID)
	}

	data, err := json.MarshalIndent(structured, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("marshal structured result: %w", err))
	}
	outName := pipeline.StageFilename(spmedge.StageProcess, doc.ID, spmedge.ShortID(doc.BatchID), doc.Name, r.now(), ".json")
	if err := os.WriteFile(filepath.Join(r.dirs.Stage(spmedge.StageProcess), outName), data, 0644); err != nil {
		return fail(fmt.Errorf("write structured artifact: %w", err))
	}

	// best-effort: the artifact file is the durable output
	if err := r.store.SaveProcessedDocument(ctx, doc.ID, structured); err != nil {
		slog.Warn("save processed document failed", "doc", doc.ID, "err", err)
	}

	rec.Status = spmedge.StatusCompleted
	if err := r.store.UpsertPipeline(ctx, rec); err != nil {
		return fail(err)
	}
	slog.Debug("processed document", "doc", doc.ID)
	return nil
}

// chatWithRetry issues the completion call, honoring the rate-limit floor
// before every request and backing off only on rate-limit-shaped errors.
func (r *Runner) chatWithRetry(ctx context.Context, prompt, content string) (string, error) {
	p, model, err := r.registry.Resolve(r.Model)
	if err != nil {
		return "", err
	}

	temp := temperature
	tokens := maxTokens
	req := &provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: systemPrompt},
			{Role: provider.RoleUser, Content: prompt + "\n\n" + content},
		},
		Temperature:  &temp,
		MaxTokens:    &tokens,
		ResponseJSON: true,
	}

	var lastErr error
	for attempt := 1; attempt <= r.MaxRetries+1; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", err
		}
		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err
		if !isRateLimited(err) || attempt > r.MaxRetries {
			return "", err
		}
		delay := backoffDelay(r.BackoffBase, attempt, r.jitter())
		slog.Warn("rate limited, backing off", "attempt", attempt, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// backoffDelay computes min(60s, base * 2^(n-1)) scaled by jitter.
func backoffDelay(base time.Duration, attempt int, jitter float64) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(DefaultMaxBackoff) {
		delay = float64(DefaultMaxBackoff)
	}
	return time.Duration(delay * jitter)
}

// isRateLimited reports whether an error is rate-limit-shaped. Other
// failures are not retried.
func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate_limit", "rate limit", "too many requests", "429"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
