package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/provider"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

type fakeStore struct {
	docs      []*spmedge.Document
	prompt    string
	schema    *spmedge.Schema
	records   map[string]*spmedge.PipelineRecord
	processed map[string]map[string]any
	stages    map[string]spmedge.Status
	saveErr   error
}

func newFakeStore(docs ...*spmedge.Document) *fakeStore {
	return &fakeStore{
		docs:      docs,
		records:   map[string]*spmedge.PipelineRecord{},
		processed: map[string]map[string]any{},
		stages:    map[string]spmedge.Status{},
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
func (f *fakeStore) GetPrompt(_ context.Context, _ string) (string, error) { return f.prompt, nil }
func (f *fakeStore) GetSchema(_ context.Context, _ string) (*spmedge.Schema, error) {
	return f.schema, nil
}
func (f *fakeStore) SaveProcessedDocument(_ context.Context, id string, structured map[string]any) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.processed[id] = structured
	return nil
}
func (f *fakeStore) GetIntSetting(_ context.Context, _ string, def int) int { return def }

// scriptedProvider returns queued errors first, then responds with content
// and records every user prompt it saw.
type scriptedProvider struct {
	errs    []error
	content string
	prompts []string
}

func (s *scriptedProvider) Name() string { return "test" }
func (s *scriptedProvider) ChatCompletion(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	s.prompts = append(s.prompts, req.Messages[len(req.Messages)-1].Content)
	return &provider.ChatResponse{Content: s.content, FinishReason: "stop"}, nil
}

func setup(t *testing.T, docs ...*spmedge.Document) (*Runner, *fakeStore, *scriptedProvider, pipeline.Dirs, *[]time.Duration) {
	t.Helper()
	dirs := pipeline.Dirs{Root: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	store := newFakeStore(docs...)
	prov := &scriptedProvider{content: `{"ok": true}`}
	reg := provider.NewRegistry()
	reg.Register(prov)

	r := New(store, dirs, reg, "test/model-x")
	r.MinInterval = 0 // the floor is exercised by TestLimiterFloor
	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	r.jitter = func() float64 { return 1.0 }
	return r, store, prov, dirs, &sleeps
}

func testDoc() *spmedge.Document {
	return &spmedge.Document{
		ID:      spmedge.NewID(),
		Name:    "plan.txt",
		TypeID:  "type-1",
		BatchID: spmedge.NewID(),
	}
}

func writeCleanArtifact(t *testing.T, dirs pipeline.Dirs, doc *spmedge.Document, content string) {
	t.Helper()
	name := pipeline.StageFilename(spmedge.StageClean, doc.ID, spmedge.ShortID(doc.BatchID), doc.Name, time.Now(), ".txt")
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Stage(spmedge.StageClean), name), []byte(content), 0644))
}

func TestProcessDocumentHappyPath(t *testing.T) {
	doc := testDoc()
	r, store, prov, dirs, _ := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "cleaned plan text")
	store.prompt = "Extract the comp plan."
	schema, err := spmedge.ParseSchema("type-1", []byte(`{"plan_name": {"type": "string"}}`))
	require.NoError(t, err)
	store.schema = schema
	prov.content = `{"plan_name": "FY25"}`

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, spmedge.StatusCompleted, store.records[doc.ID].Status)
	assert.Equal(t, spmedge.StatusCompleted, store.stages[doc.BatchID])

	require.Len(t, prov.prompts, 1)
	assert.Contains(t, prov.prompts[0], "Extract the comp plan.")
	assert.Contains(t, prov.prompts[0], "Return your response in the following JSON schema:")
	assert.Contains(t, prov.prompts[0], "cleaned plan text")

	artPath := pipeline.FindStageFile(dirs.Stage(spmedge.StageProcess), doc.ID)
	require.NotEmpty(t, artPath)
	data, err := os.ReadFile(artPath)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "FY25", out["plan_name"])

	assert.Equal(t, "FY25", store.processed[doc.ID]["plan_name"])
}

func TestRateLimitRetryBackoff(t *testing.T) {
	doc := testDoc()
	r, store, prov, dirs, sleeps := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "text")
	prov.errs = []error{
		errors.New("API error (status 429): rate_limit"),
		errors.New("API error (status 429): rate_limit"),
	}

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, spmedge.StatusCompleted, store.records[doc.ID].Status)

	// two backoffs at 2s and 4s (jitter pinned to 1.0)
	var backoffs []time.Duration
	for _, d := range *sleeps {
		if d >= time.Second*2 {
			backoffs = append(backoffs, d)
		}
	}
	require.Len(t, backoffs, 2)
	assert.Equal(t, 2*time.Second, backoffs[0])
	assert.Equal(t, 4*time.Second, backoffs[1])
}

func TestNonRetryableErrorFailsImmediately(t *testing.T) {
	doc := testDoc()
	r, store, prov, dirs, sleeps := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "text")
	prov.errs = []error{errors.New("API error (status 400): bad request")}

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, spmedge.StatusFailed, store.records[doc.ID].Status)

	for _, d := range *sleeps {
		assert.Less(t, d, 2*time.Second, "no backoff for non-rate-limit errors")
	}
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	doc := testDoc()
	r, store, prov, dirs, _ := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "text")
	r.MaxRetries = 2
	for i := 0; i < 5; i++ {
		prov.errs = append(prov.errs, errors.New("429 too many requests"))
	}

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Contains(t, store.records[doc.ID].Error, "429")
}

func TestMalformedResponseStoresRawText(t *testing.T) {
	doc := testDoc()
	r, store, prov, dirs, _ := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "text")
	prov.content = "```json\n{foo:\n```"

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, spmedge.StatusCompleted, store.records[doc.ID].Status)
	assert.Equal(t, prov.content, store.processed[doc.ID]["raw_text"])
}

func TestContentTruncation(t *testing.T) {
	doc := testDoc()
	r, _, prov, dirs, _ := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, strings.Repeat("x", 20000))
	r.MaxContentLen = 100

	_, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, prov.prompts, 1)
	assert.Contains(t, prov.prompts[0], "[content truncated]")
	assert.Less(t, len(prov.prompts[0]), 1000)
}

func TestGenericPromptFallback(t *testing.T) {
	doc := testDoc()
	r, _, prov, dirs, _ := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "text")

	_, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, prov.prompts, 1)
	assert.Contains(t, prov.prompts[0], genericPrompt)
}

func TestSaveProcessedBestEffort(t *testing.T) {
	doc := testDoc()
	r, store, _, dirs, _ := setup(t, doc)
	writeCleanArtifact(t, dirs, doc, "text")
	store.saveErr = fmt.Errorf("connection refused")

	sum, err := r.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, spmedge.StatusCompleted, store.records[doc.ID].Status)
}

func TestSubBatchPause(t *testing.T) {
	d1, d2, d3 := testDoc(), testDoc(), testDoc()
	r, _, _, dirs, sleeps := setup(t, d1, d2, d3)
	for _, d := range []*spmedge.Document{d1, d2, d3} {
		writeCleanArtifact(t, dirs, d, "text")
	}
	r.SubBatchSize = 2
	r.MinInterval = 0

	_, err := r.Run(context.Background(), 10)
	require.NoError(t, err)

	// one 1s pause inside the first sub-batch, none between sub-batches
	pauses := 0
	for _, d := range *sleeps {
		if d == time.Second {
			pauses++
		}
	}
	assert.Equal(t, 1, pauses)
}

func TestLimiterFloor(t *testing.T) {
	l := NewLimiter(3 * time.Second)
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }
	var waits []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		current = current.Add(d)
		return nil
	}

	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, waits, "first request goes straight through")

	current = current.Add(time.Second)
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, waits, 1)
	assert.Equal(t, 2*time.Second, waits[0])

	current = current.Add(5 * time.Second)
	require.NoError(t, l.Wait(context.Background()))
	assert.Len(t, waits, 1, "no wait once the interval has passed")
}

func TestBackoffDelayCap(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDelay(2*time.Second, 1, 1.0))
	assert.Equal(t, 16*time.Second, backoffDelay(2*time.Second, 4, 1.0))
	assert.Equal(t, 60*time.Second, backoffDelay(2*time.Second, 10, 1.0))
	assert.Equal(t, 3*time.Second, backoffDelay(2*time.Second, 1, 1.5))
}
