package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Store is the slice of the state store the indexer needs.
type Store interface {
	GetDocumentsForStage(ctx context.Context, previous spmedge.Stage, status spmedge.Status, retryFailed bool, limit int) ([]*spmedge.Document, error)
	UpsertPipeline(ctx context.Context, rec *spmedge.PipelineRecord) error
	UpdateDocumentMetadata(ctx context.Context, id string, fields map[string]any) error
	SetBatchStage(ctx context.Context, id string, stage spmedge.Stage, status spmedge.Status) error
	GetIntSetting(ctx context.Context, key string, def int) int
}

// Runner drives the INDEX stage: it chunks each document's cleaned text,
// embeds the chunks and inserts them into the vector store, which is
// persisted once per run.
type Runner struct {
	store  Store
	dirs   pipeline.Dirs
	engine Engine
	vstore *VectorStore

	// IndexDir is where the vector store persists. RetryFailed re-admits
	// documents whose index stage previously failed.
	IndexDir    string
	RetryFailed bool
}

// New creates an INDEX stage runner over an open vector store.
func New(store Store, dirs pipeline.Dirs, engine Engine, vstore *VectorStore, indexDir string) *Runner {
	return &Runner{store: store, dirs: dirs, engine: engine, vstore: vstore, IndexDir: indexDir}
}

// Stage implements pipeline.StageRunner.
func (r *Runner) Stage() spmedge.Stage { return spmedge.StageIndex }

// Run indexes up to limit documents whose process stage completed.
func (r *Runner) Run(ctx context.Context, limit int) (*pipeline.Summary, error) {
	if limit <= 0 {
		limit = r.store.GetIntSetting(ctx, spmedge.SettingBatchSize, spmedge.DefaultBatchSize)
	}
	docs, err := r.store.GetDocumentsForStage(ctx, spmedge.StageProcess, spmedge.StatusCompleted, r.RetryFailed, limit)
	if err != nil {
		return nil, err
	}
	sum := &pipeline.Summary{Stage: spmedge.StageIndex}
	if len(docs) == 0 {
		slog.Info("no documents ready for index")
		return sum, nil
	}
	sum.BatchID = docs[0].BatchID

	perBatch := map[string]*pipeline.Summary{}
	for _, doc := range docs {
		err := r.indexOne(ctx, doc)

		bs, ok := perBatch[doc.BatchID]
		if !ok {
			bs = &pipeline.Summary{Stage: spmedge.StageIndex, BatchID: doc.BatchID}
			perBatch[doc.BatchID] = bs
		}
		if err != nil {
			slog.Error("❌ index failed", "doc", doc.ID, "name", doc.Name, "err", err)
			sum.Failed++
			bs.Failed++
		} else {
			sum.Succeeded++
			bs.Succeeded++
		}
	}

	if sum.Succeeded > 0 {
		if err := r.vstore.Save(r.IndexDir); err != nil {
			return sum, fmt.Errorf("persist index: %w", err)
		}
	}
	for batchID, bs := range perBatch {
		if err := r.store.SetBatchStage(ctx, batchID, spmedge.StageIndex, bs.Status()); err != nil {
			slog.Warn("update batch stage failed", "batch", batchID, "err", err)
		}
	}
	slog.Info("index finished", "succeeded", sum.Succeeded, "failed", sum.Failed, "vectors", r.vstore.Len())
	return sum, nil
}

// indexOne chunks, embeds and stores a single document.
func (r *Runner) indexOne(ctx context.Context, doc *spmedge.Document) error {
	rec := &spmedge.PipelineRecord{
		DocumentID: doc.ID,
		Stage:      spmedge.StageIndex,
		BatchID:    doc.BatchID,
		TypeID:     doc.TypeID,
	}
	fail := func(err error) error {
		rec.Status = spmedge.StatusFailed
		rec.Error = err.Error()
		if upErr := r.store.UpsertPipeline(ctx, rec); upErr != nil {
			slog.Warn("record index failure", "doc", doc.ID, "err", upErr)
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

	chunks := SplitChunks(doc.ID, content, DefaultChunkSize, DefaultChunkOverlap)
	if len(chunks) == 0 {
		return fail(fmt.Errorf("no chunks produced for %s", doc.Name))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := r.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(fmt.Errorf("embed: %w", err))
	}

	stored := make([]StoredChunk, len(chunks))
	for i, c := range chunks {
		stored[i] = StoredChunk{
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			Text:       c.Text,
			Metadata: map[string]string{
				"document_name": doc.Name,
				"batch_id":      doc.BatchID,
				"chunk_index":   fmt.Sprintf("%d", c.Index),
				"source":        "pipeline",
			},
		}
	}
	inserted, err := r.vstore.Insert(stored, vecs)
	if err != nil {
		return fail(err)
	}
	if inserted == 0 {
		return fail(fmt.Errorf("all vectors rejected for %s", doc.Name))
	}

	meta := map[string]any{
		"indexed_chunks":  inserted,
		"embedding_model": r.engine.Name(),
	}
	if err := r.store.UpdateDocumentMetadata(ctx, doc.ID, meta); err != nil {
		return fail(err)
	}

	rec.Status = spmedge.StatusCompleted
	if err := r.store.UpsertPipeline(ctx, rec); err != nil {
		return fail(err)
	}
	slog.Debug("indexed document", "doc", doc.ID, "chunks", inserted)
	return nil
}

// frameworkExts lists the file types IndexDirectory picks up.
var frameworkExts = map[string]bool{".md": true, ".txt": true, ".markdown": true}

// IndexDirectory indexes every markdown and text file under root as
// framework reference material, outside the pipeline's stage machine.
// Returns the number of chunks inserted.
func (r *Runner) IndexDirectory(ctx context.Context, root string) (int, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if frameworkExts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}
	if len(files) == 0 {
		return 0, nil
	}
	sort.Strings(files)

	total := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", path, err)
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		docID := "framework:" + rel

		chunks := SplitChunks(docID, string(data), DefaultChunkSize, DefaultChunkOverlap)
		if len(chunks) == 0 {
			continue
		}
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := r.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed %s: %w", rel, err)
		}
		stored := make([]StoredChunk, len(chunks))
		for i, c := range chunks {
			stored[i] = StoredChunk{
				ChunkID:    c.ID,
				DocumentID: docID,
				Text:       c.Text,
				Metadata: map[string]string{
					"source":      "framework",
					"source_file": rel,
					"chunk_index": fmt.Sprintf("%d", c.Index),
				},
			}
		}
		inserted, err := r.vstore.Insert(stored, vecs)
		if err != nil {
			return total, err
		}
		total += inserted
		slog.Debug("indexed framework file", "file", rel, "chunks", inserted)
	}

	if total > 0 {
		if err := r.vstore.Save(r.IndexDir); err != nil {
			return total, fmt.Errorf("persist index: %w", err)
		}
	}
	slog.Info("framework indexing finished", "files", len(files), "chunks", total)
	return total, nil
}

// Stats describes the state of a vector store.
type Stats struct {
	Vectors        int            `json:"vectors"`
	Dimensions     int            `json:"dimensions"`
	IndexKind      string         `json:"index_kind"`
	DocumentChunks map[string]int `json:"document_chunks"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Analyze reports vector count, dimension, index kind and per-document
// chunk counts.
func Analyze(vstore *VectorStore) Stats {
	return Stats{
		Vectors:        vstore.Len(),
		Dimensions:     vstore.Dimensions(),
		IndexKind:      vstore.Kind(),
		DocumentChunks: vstore.DocumentChunkCounts(),
		GeneratedAt:    time.Now().UTC(),
	}
}

// Query embeds the query text with the runner's engine and runs a hybrid
// search over the store.
func (r *Runner) Query(ctx context.Context, query string, k int, alpha float64) ([]Result, error) {
	queryVec, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.vstore.HybridSearch(query, queryVec, k, alpha, nil)
}
