package cleaner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spm-edge/spmedge/internal/db"
	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

type fakeStore struct {
	docs     []*spmedge.Document
	rules    []*spmedge.CleaningRule
	schema   *spmedge.Schema
	records  map[string]*spmedge.PipelineRecord
	metadata map[string]map[string]any
	sections map[string][]db.SectionRow
	stages   map[string]spmedge.Status
	bools    map[string]bool
}

func newFakeStore(docs ...*spmedge.Document) *fakeStore {
	return &fakeStore{
		docs:     docs,
		records:  map[string]*spmedge.PipelineRecord{},
		metadata: map[string]map[string]any{},
		sections: map[string][]db.SectionRow{},
		stages:   map[string]spmedge.Status{},
	}
}

func (f *fakeStore) GetDocumentsForStage(_ context.Context, _ spmedge.Stage, _ spmedge.Status, _ bool, _ int) ([]*spmedge.Document, error) {
	return f.docs, nil
}
func (f *fakeStore) UpsertPipeline(_ context.Context, rec *spmedge.PipelineRecord) error {
	f.records[rec.DocumentID] = rec
	return nil
}
func (f *fakeStore) SetBatchStage(_ context.Context, id string, _ spmedge.Stage, status spmedge.Status) error {
	f.stages[id] = status
	return nil
}
func (f *fakeStore) UpdateDocumentMetadata(_ context.Context, id string, fields map[string]any) error {
	f.metadata[id] = fields
	return nil
}
func (f *fakeStore) GetCleaningRules(_ context.Context, _ string) ([]*spmedge.CleaningRule, error) {
	return f.rules, nil
}
func (f *fakeStore) GetSchema(_ context.Context, _ string) (*spmedge.Schema, error) {
	return f.schema, nil
}
func (f *fakeStore) ReplaceDocumentSections(_ context.Context, id string, rows []db.SectionRow) error {
	f.sections[id] = rows
	return nil
}
func (f *fakeStore) GetIntSetting(_ context.Context, _ string, def int) int { return def }
func (f *fakeStore) GetBoolSetting(_ context.Context, key string, def bool) bool {
	if v, ok := f.bools[key]; ok {
		return v
	}
	return def
}

func testDoc() *spmedge.Document {
	return &spmedge.Document{
		ID:       spmedge.NewID(),
		Name:     "plan.txt",
		TypeID:   "type-1",
		BatchID:  spmedge.NewID(),
		FileType: "txt",
	}
}

func writeLoadArtifact(t *testing.T, dirs pipeline.Dirs, doc *spmedge.Document, content string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"content": content})
	require.NoError(t, err)
	name := pipeline.StageFilename(spmedge.StageLoad, doc.ID, spmedge.ShortID(doc.BatchID), doc.Name, time.Now(), ".json")
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Stage(spmedge.StageLoad), name), payload, 0644))
}

func TestRunCleansDocument(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc()
	content := "# Plan Overview\nDRAFT The plan covers   fiscal 2025.\n\nPage 3\n"
	writeLoadArtifact(t, dirs, doc, content)

	store := newFakeStore(doc)
	store.rules = []*spmedge.CleaningRule{
		{ID: 1, Pattern: `DRAFT\s+`, Replacement: "", Kind: spmedge.RuleRegex, Context: "body", Active: true},
	}

	r := New(store, dirs)
	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, spmedge.StatusCompleted, store.records[doc.ID].Status)
	assert.Equal(t, spmedge.StatusCompleted, store.stages[doc.BatchID])

	artPath := pipeline.FindStageFile(dirs.Stage(spmedge.StageClean), doc.ID)
	require.NotEmpty(t, artPath)
	data, err := os.ReadFile(artPath)
	require.NoError(t, err)
	cleaned := string(data)
	assert.Equal(t, "# Plan Overview\nThe plan covers fiscal 2025.", cleaned)

	meta := store.metadata[doc.ID]
	assert.Equal(t, len(cleaned), meta["cleaned_length"])

	rows := store.sections[doc.ID]
	require.NotEmpty(t, rows)
	assert.Equal(t, spmedge.SectionHeader, rows[0].Kind)
}

func TestRunNestedContentUnwrap(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc()
	inner, err := json.Marshal(map[string]any{"content": "innermost text"})
	require.NoError(t, err)
	writeLoadArtifact(t, dirs, doc, string(inner))

	store := newFakeStore(doc)
	_, err = New(store, dirs).Run(context.Background(), 10)
	require.NoError(t, err)

	artPath := pipeline.FindStageFile(dirs.Stage(spmedge.StageClean), doc.ID)
	data, err := os.ReadFile(artPath)
	require.NoError(t, err)
	assert.Equal(t, "innermost text", string(data))
}

func TestRunMissingContent(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc()
	store := newFakeStore(doc)

	sum, err := New(store, dirs).Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	rec := store.records[doc.ID]
	require.NotNil(t, rec)
	assert.Equal(t, spmedge.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "No content found")
	assert.Equal(t, spmedge.StatusFailed, store.stages[doc.BatchID])
}

func TestRunAIRefinement(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc()
	writeLoadArtifact(t, dirs, doc, "Some body text to refine.")

	store := newFakeStore(doc)
	store.bools = map[string]bool{spmedge.SettingCleanerUseAI: true}

	r := New(store, dirs)
	called := false
	r.Refine = func(_ context.Context, text string) (string, error) {
		called = true
		return "refined: " + text, nil
	}

	// below min_chars_for_ai: refiner must not run
	_, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, called)

	data, err := os.ReadFile(pipeline.FindStageFile(dirs.Stage(spmedge.StageClean), doc.ID))
	require.NoError(t, err)
	assert.Equal(t, "Some body text to refine.", string(data))
}
