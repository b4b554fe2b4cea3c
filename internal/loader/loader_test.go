package loader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/rag"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

type fakeStore struct {
	mu       sync.Mutex
	docs     []*spmedge.Document
	records  map[string]*spmedge.PipelineRecord
	metadata map[string]map[string]any
	stages   map[string]spmedge.Status
	settings map[string]int
}

func newFakeStore(docs ...*spmedge.Document) *fakeStore {
	return &fakeStore{
		docs:     docs,
		records:  map[string]*spmedge.PipelineRecord{},
		metadata: map[string]map[string]any{},
		stages:   map[string]spmedge.Status{},
	}
}

func (f *fakeStore) GetDocumentsForStage(_ context.Context, _ spmedge.Stage, _ spmedge.Status, _ bool, limit int) ([]*spmedge.Document, error) {
	if len(f.docs) > limit {
		return f.docs[:limit], nil
	}
	return f.docs, nil
}

func (f *fakeStore) UpsertPipeline(_ context.Context, rec *spmedge.PipelineRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.DocumentID] = rec
	return nil
}

func (f *fakeStore) UpdateDocumentMetadata(_ context.Context, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[id] = fields
	return nil
}

func (f *fakeStore) SetBatchStage(_ context.Context, id string, _ spmedge.Stage, status spmedge.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[id] = status
	return nil
}

func (f *fakeStore) GetIntSetting(_ context.Context, key string, def int) int {
	if v, ok := f.settings[key]; ok {
		return v
	}
	return def
}

func testDoc(name string) *spmedge.Document {
	return &spmedge.Document{
		ID:           spmedge.NewID(),
		Name:         name,
		OriginalName: name,
		TypeID:       "type-1",
		BatchID:      spmedge.NewID(),
		FileType:     "txt",
	}
}

func TestRunLoadsDocument(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc("comp_plan_q3.txt")
	// Extraction trims the trailing newline from plain text.
	content := "Plan Overview\n\nTarget Incentive is 40% of base salary."
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Stage(spmedge.StageInput), doc.Name), []byte(content+"\n"), 0644))

	store := newFakeStore(doc)
	r := New(store, dirs)
	r.now = func() time.Time { return time.Date(2025, 7, 14, 9, 30, 5, 0, time.UTC) }

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, spmedge.StatusCompleted, store.stages[doc.BatchID])

	rec := store.records[doc.ID]
	require.NotNil(t, rec)
	assert.Equal(t, spmedge.StatusCompleted, rec.Status)

	artPath := pipeline.FindStageFile(dirs.Stage(spmedge.StageLoad), doc.ID)
	require.NotEmpty(t, artPath)
	assert.Contains(t, filepath.Base(artPath), "pipeline_load_doc"+spmedge.ShortID(doc.ID))

	data, err := os.ReadFile(artPath)
	require.NoError(t, err)
	var art Artifact
	require.NoError(t, json.Unmarshal(data, &art))
	assert.Equal(t, content, art.Content)
	assert.Equal(t, "comp_plan", art.RAGDocument.DocType)
	assert.InDelta(t, 0.9, art.RAGDocument.Confidence, 0.001)
	assert.Equal(t, 1.0, art.Extraction.Quality)
	assert.NotEmpty(t, art.RAGDocument.Chunks)
	assert.Equal(t, art.Stats.ChunkCount, len(art.RAGDocument.Chunks))

	meta := store.metadata[doc.ID]
	require.NotNil(t, meta)
	assert.Equal(t, "text", meta["detected_format"])
	assert.Equal(t, 9, meta["word_count"])
}

func TestRunMissingSource(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc("ghost.txt")
	store := newFakeStore(doc)

	sum, err := New(store, dirs).Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, spmedge.StatusFailed, store.stages[doc.BatchID])

	rec := store.records[doc.ID]
	require.NotNil(t, rec)
	assert.Equal(t, spmedge.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "source file not found")
}

func TestRunNoDocuments(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	sum, err := New(newFakeStore(), dirs).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Succeeded+sum.Failed)
}

func TestFindSourceFallbacks(t *testing.T) {
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	doc := testDoc("plan.txt")
	doc.OriginalName = "plan orig.txt"

	assert.Empty(t, findSource(dirs, doc))

	// lowest-priority match: short-id glob in stage_load
	glob := filepath.Join(dirs.Stage(spmedge.StageLoad), "x_doc"+spmedge.ShortID(doc.ID)+"_y.txt")
	require.NoError(t, os.WriteFile(glob, []byte("g"), 0644))
	assert.Equal(t, glob, findSource(dirs, doc))

	// original name in unprocessed beats the glob
	unproc := filepath.Join(dirs.Unprocessed(), doc.OriginalName)
	require.NoError(t, os.WriteFile(unproc, []byte("u"), 0644))
	assert.Equal(t, unproc, findSource(dirs, doc))

	// canonical stage_input copy wins
	canonical := filepath.Join(dirs.Stage(spmedge.StageInput), doc.Name)
	require.NoError(t, os.WriteFile(canonical, []byte("c"), 0644))
	assert.Equal(t, canonical, findSource(dirs, doc))
}

func TestDetectDocType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		docType  string
		minConf  float64
	}{
		{"filename comp plan", "Q3_Comp_Plan.pdf", "", "comp_plan", 0.9},
		{"filename quota", "emea_quota_2025.xlsx", "", "quota_sheet", 0.8},
		{"content target incentive", "doc1.pdf", "Your Target Incentive is 40%.", "comp_plan", 0.6},
		{"content terms", "doc2.pdf", "See the Terms and Conditions below.", "terms", 0.5},
		{"unknown", "doc3.pdf", "nothing relevant here", "unknown", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docType, conf := detectDocType(tt.filename, tt.content)
			assert.Equal(t, tt.docType, docType)
			assert.GreaterOrEqual(t, conf, tt.minConf)
		})
	}
}

func TestRenderFormats(t *testing.T) {
	art := &Artifact{
		OriginalName: "plan.txt",
		Content:      "body text",
		Metadata:     map[string]any{"title": "Q3 Plan"},
		Extraction:   Extraction{Quality: 0.9},
	}

	data, ext, err := art.Render("text")
	require.NoError(t, err)
	assert.Equal(t, ".txt", ext)
	assert.Equal(t, "body text", string(data))

	data, ext, err = art.Render("markdown")
	require.NoError(t, err)
	assert.Equal(t, ".md", ext)
	assert.Contains(t, string(data), "# plan.txt")
	assert.Contains(t, string(data), "**title**: Q3 Plan")
	assert.Contains(t, string(data), "body text")

	_, _, err = art.Render("yaml")
	assert.Error(t, err)
}

func TestChunkRoundTrip(t *testing.T) {
	paras := []string{}
	for i := 0; i < 12; i++ {
		paras = append(paras, "Paragraph number "+string(rune('A'+i))+" with enough words to carry some weight in the chunker and push past boundaries.")
	}
	content := ""
	for i, p := range paras {
		if i > 0 {
			content += "\n\n"
		}
		content += p
	}

	chunks := rag.SplitChunks("doc-1", content, 300, 50)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, content, rag.JoinChunks(chunks))
}
