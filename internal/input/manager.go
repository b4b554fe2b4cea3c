// Package input implements the batch manager: it brings external files
// from the unprocessed directory under pipeline control.
package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Store is the slice of the state store the batch manager needs.
type Store interface {
	GetDocumentTypeByName(ctx context.Context, name string) (*spmedge.DocumentType, error)
	CreateBatch(ctx context.Context, b *spmedge.Batch) error
	FinalizeBatch(ctx context.Context, id string, status spmedge.Status) error
	RegisterDocument(ctx context.Context, doc *spmedge.Document) error
	UpsertPipeline(ctx context.Context, rec *spmedge.PipelineRecord) error
}

// ErrAllFailed marks a batch where every scanned file failed to
// register. Callers distinguish it from configuration errors.
var ErrAllFailed = errors.New("no documents registered")

// Options control what happens to source files after registration.
type Options struct {
	Archive  bool // copy originals to archive/
	Delete   bool // remove sources (implied by Archive)
	MaxFiles int  // cap the batch; 0 takes everything in unprocessed/
}

// Manager registers unprocessed files as documents and creates batches.
type Manager struct {
	store Store
	dirs  pipeline.Dirs
	now   func() time.Time
}

// New creates a batch manager.
func New(store Store, dirs pipeline.Dirs) *Manager {
	return &Manager{store: store, dirs: dirs, now: time.Now}
}

// sidecar is the per-file .meta.json written next to the canonical copy.
type sidecar struct {
	DocumentID   string    `json:"document_id"`
	OriginalName string    `json:"original_name"`
	FileType     string    `json:"file_type"`
	SizeBytes    int64     `json:"size_bytes"`
	BatchID      string    `json:"batch_id"`
	RegisteredAt time.Time `json:"registered_at"`
	DurationMS   int64     `json:"processing_duration_ms"`
}

// batchSummary is the batch_summary_<batch>.json written into stage_input.
type batchSummary struct {
	BatchID    string         `json:"batch_id"`
	TypeName   string         `json:"document_type"`
	FileCounts map[string]int `json:"file_type_counts"`
	TotalBytes int64          `json:"total_bytes"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ProcessBatch registers every file under unprocessed/ for the given
// document type. Returns "" with no error (and no batch) when the
// directory is empty; returns "" with an error when nothing succeeded.
func (m *Manager) ProcessBatch(ctx context.Context, docTypeName string, opts Options) (string, error) {
	docType, err := m.store.GetDocumentTypeByName(ctx, docTypeName)
	if err != nil {
		return "", err
	}

	files, err := listFiles(m.dirs.Unprocessed())
	if err != nil {
		return "", fmt.Errorf("scan unprocessed: %w", err)
	}
	if len(files) == 0 {
		slog.Info("no unprocessed files", "type", docTypeName)
		return "", nil
	}
	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		files = files[:opts.MaxFiles]
	}

	now := m.now().UTC()
	batch := &spmedge.Batch{
		ID:            spmedge.NewID(),
		Name:          fmt.Sprintf("%s_%s", docTypeName, now.Format("20060102_150405")),
		DocumentCount: len(files),
		Status:        spmedge.StatusProcessing,
		Stage:         spmedge.StageInput,
		CreatedAt:     now,
	}
	if err := m.store.CreateBatch(ctx, batch); err != nil {
		return "", err
	}

	summary := batchSummary{
		BatchID:    batch.ID,
		TypeName:   docTypeName,
		FileCounts: map[string]int{},
		CreatedAt:  now,
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := m.registerFile(ctx, file, docType, batch, opts, &summary); err != nil {
			slog.Error("❌ register failed", "file", filepath.Base(file), "err", err)
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	m.writeSummary(batch.ID, summary)

	status := spmedge.StatusCompleted
	switch {
	case summary.Succeeded == 0:
		status = spmedge.StatusFailed
	case summary.Failed > 0:
		status = spmedge.StatusPartial
	}
	if err := m.store.FinalizeBatch(ctx, batch.ID, status); err != nil {
		slog.Warn("finalize batch failed", "batch", batch.ID, "err", err)
	}

	if summary.Succeeded == 0 {
		return "", fmt.Errorf("batch %s: %w", batch.ID, ErrAllFailed)
	}
	slog.Info("batch registered", "batch", batch.ID, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return batch.ID, nil
}

// registerFile persists one document, copies it into stage_input, writes
// its sidecar, and records the input pipeline row.
func (m *Manager) registerFile(ctx context.Context, path string, docType *spmedge.DocumentType, batch *spmedge.Batch, opts Options, summary *batchSummary) error {
	started := m.now()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	original := filepath.Base(path)
	docID := spmedge.NewID()
	name := spmedge.SanitizeFilename(original)
	if strings.TrimSuffix(name, filepath.Ext(name)) == "" {
		name = spmedge.FallbackName(docID) + filepath.Ext(name)
	}
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(original)), ".")

	doc := &spmedge.Document{
		ID:           docID,
		Name:         name,
		OriginalName: original,
		TypeID:       docType.ID,
		BatchID:      batch.ID,
		Size:         info.Size(),
		FileType:     fileType,
		CreatedAt:    m.now().UTC(),
		UpdatedAt:    m.now().UTC(),
	}

	rec := &spmedge.PipelineRecord{
		DocumentID: docID,
		Stage:      spmedge.StageInput,
		BatchID:    batch.ID,
		TypeID:     docType.ID,
	}

	err = func() error {
		if err := m.store.RegisterDocument(ctx, doc); err != nil {
			return err
		}
		dest := filepath.Join(m.dirs.Stage(spmedge.StageInput), name)
		if err := copyFile(path, dest); err != nil {
			return fmt.Errorf("copy to stage_input: %w", err)
		}
		if opts.Archive {
			if err := copyFile(path, filepath.Join(m.dirs.Archive(), original)); err != nil {
				return fmt.Errorf("archive: %w", err)
			}
		}
		if opts.Archive || opts.Delete {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove source: %w", err)
			}
		}
		return nil
	}()

	if err != nil {
		rec.Status = spmedge.StatusFailed
		rec.Error = err.Error()
		m.store.UpsertPipeline(ctx, rec)
		return err
	}

	meta := sidecar{
		DocumentID:   docID,
		OriginalName: original,
		FileType:     fileType,
		SizeBytes:    info.Size(),
		BatchID:      batch.ID,
		RegisteredAt: m.now().UTC(),
		DurationMS:   m.now().Sub(started).Milliseconds(),
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		metaPath := filepath.Join(m.dirs.Stage(spmedge.StageInput), stem+".meta.json")
		if err := os.WriteFile(metaPath, data, 0644); err != nil {
			slog.Warn("write sidecar failed", "doc", docID, "err", err)
		}
	}

	summary.FileCounts[fileType]++
	summary.TotalBytes += info.Size()

	rec.Status = spmedge.StatusCompleted
	if err := m.store.UpsertPipeline(ctx, rec); err != nil {
		return err
	}
	slog.Debug("registered document", "doc", docID, "name", name, "type", fileType)
	return nil
}

func (m *Manager) writeSummary(batchID string, summary batchSummary) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(m.dirs.Stage(spmedge.StageInput), "batch_summary_"+batchID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("write batch summary failed", "batch", batchID, "err", err)
	}
}

// listFiles returns the regular files directly under dir, sorted by name
// for deterministic registration order.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
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
