package rag

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Persistence filenames under the store directory. Vectors are gob-encoded
// (binary), chunk metadata is JSON, and the schema sidecar sanity-checks a
// reload against the configured dimensions and index kind.
const (
	vectorsFile = "vectors.gob"
	chunksFile  = "chunks.json"
	schemaFile  = "index_schema.json"
)

// StoredChunk is a chunk held by the store together with its metadata.
// The vector itself lives in the index, keyed by the chunk's position.
type StoredChunk struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is a retrieval hit.
type Result struct {
	StoredChunk
	Score    float64 `json:"score"`
	Distance float64 `json:"distance,omitempty"`
}

// Filter narrows search results; a nil filter admits everything.
type Filter func(c StoredChunk) bool

// VectorStore pairs a vector index with per-chunk metadata and offers
// similarity, keyword and hybrid retrieval over the stored chunks.
type VectorStore struct {
	mu         sync.RWMutex
	dimensions int
	kind       string
	index      vectorIndex
	chunks     []StoredChunk
	vecs       [][]float32 // insertion-order copy for persistence
}

// NewVectorStore creates an empty store of the given index kind
// ("flat", "ivf" or "hnsw") and vector dimension.
func NewVectorStore(kind string, dimensions int) (*VectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dimensions)
	}
	index, err := newVectorIndex(kind, dimensions)
	if err != nil {
		return nil, err
	}
	return &VectorStore{dimensions: dimensions, kind: index.Kind(), index: index}, nil
}

// Dimensions returns the fixed vector dimension of the store.
func (s *VectorStore) Dimensions() int { return s.dimensions }

// Kind returns the index kind.
func (s *VectorStore) Kind() string { return s.kind }

// Len returns the number of stored chunks.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Insert adds chunks with their embeddings. Vectors whose dimension does
// not match the store are rejected with a warning; the rest are inserted.
// Returns the number inserted.
func (s *VectorStore) Insert(chunks []StoredChunk, vecs [][]float32) (int, error) {
	if len(chunks) != len(vecs) {
		return 0, fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vecs))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var keepChunks []StoredChunk
	var keepVecs [][]float32
	for i, v := range vecs {
		if len(v) != s.dimensions {
			slog.Warn("rejecting vector with wrong dimension",
				"chunk", chunks[i].ChunkID, "got", len(v), "want", s.dimensions)
			continue
		}
		keepChunks = append(keepChunks, chunks[i])
		keepVecs = append(keepVecs, v)
	}
	if len(keepVecs) == 0 {
		return 0, nil
	}
	s.index.Add(keepVecs)
	s.chunks = append(s.chunks, keepChunks...)
	s.vecs = append(s.vecs, keepVecs...)
	return len(keepVecs), nil
}

// SimilaritySearch returns up to k chunks ordered by ascending L2 distance
// to queryVec, scored 1/(1+distance). It over-fetches 2k from the index so
// an optional filter still has k candidates to choose from.
func (s *VectorStore) SimilaritySearch(queryVec []float32, k int, filter Filter) ([]Result, error) {
	if len(queryVec) != s.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(queryVec), s.dimensions, spmedge.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := s.index.Search(queryVec, 2*k)
	results := make([]Result, 0, k)
	for _, h := range hits {
		c := s.chunks[h.id]
		if filter != nil && !filter(c) {
			continue
		}
		dist := math.Sqrt(float64(h.dist))
		results = append(results, Result{
			StoredChunk: c,
			Distance:    dist,
			Score:       1.0 / (1.0 + dist),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// KeywordSearch splits the query into lowercased tokens and scores each
// chunk by summed occurrence counts over the given metadata fields (chunk
// text when fields is empty). Zero-match chunks are dropped.
func (s *VectorStore) KeywordSearch(query string, k int, fields []string) []Result {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || k <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Result
	for _, c := range s.chunks {
		var text string
		if len(fields) == 0 {
			text = strings.ToLower(c.Text)
		} else {
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				if f == "text" {
					parts = append(parts, c.Text)
				} else if v, ok := c.Metadata[f]; ok {
					parts = append(parts, v)
				}
			}
			text = strings.ToLower(strings.Join(parts, " "))
		}
		var count int
		for _, tok := range tokens {
			count += strings.Count(text, tok)
		}
		if count == 0 {
			continue
		}
		results = append(results, Result{StoredChunk: c, Score: float64(count)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// HybridSearch combines similarity and keyword retrieval:
// alpha*similarity + (1-alpha)*keyword, with the keyword score normalized
// by the best keyword score. alpha 0 is pure keyword, 1 pure vector.
func (s *VectorStore) HybridSearch(query string, queryVec []float32, k int, alpha float64, filter Filter) ([]Result, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha must be in [0,1], got %g", alpha)
	}
	sim, err := s.SimilaritySearch(queryVec, 2*k, nil)
	if err != nil {
		return nil, err
	}
	kw := s.KeywordSearch(query, 2*k, nil)

	var kwMax float64
	for _, r := range kw {
		if r.Score > kwMax {
			kwMax = r.Score
		}
	}

	combined := map[string]*Result{}
	for _, r := range sim {
		r := r
		r.Score = alpha * r.Score
		combined[r.ChunkID] = &r
	}
	for _, r := range kw {
		norm := r.Score / kwMax
		if got, ok := combined[r.ChunkID]; ok {
			got.Score += (1 - alpha) * norm
		} else {
			r := r
			r.Score = (1 - alpha) * norm
			combined[r.ChunkID] = &r
		}
	}

	results := make([]Result, 0, len(combined))
	for _, r := range combined {
		if filter != nil && !filter(r.StoredChunk) {
			continue
		}
		results = append(results, *r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DocumentChunkCounts returns how many chunks each document contributed.
func (s *VectorStore) DocumentChunkCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int{}
	for _, c := range s.chunks {
		counts[c.DocumentID]++
	}
	return counts
}

// indexSchema is the sidecar written next to the two data files.
type indexSchema struct {
	Dimensions int    `json:"dimensions"`
	IndexType  string `json:"index_type"`
}

// Save writes the store to dir: gob vectors, JSON chunk metadata and the
// schema sidecar.
func (s *VectorStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, vectorsFile))
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(s.vecs); err != nil {
		f.Close()
		return fmt.Errorf("encode vectors: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close vectors file: %w", err)
	}

	chunkData, err := json.MarshalIndent(s.chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, chunksFile), chunkData, 0644); err != nil {
		return fmt.Errorf("write chunks file: %w", err)
	}

	schemaData, err := json.MarshalIndent(indexSchema{Dimensions: s.dimensions, IndexType: s.kind}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, schemaFile), schemaData, 0644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}
	return nil
}

// LoadVectorStore restores a store from dir. The persisted schema must
// match the requested kind and dimensions; the index structure itself is
// rebuilt by re-inserting the persisted vectors.
func LoadVectorStore(dir, kind string, dimensions int) (*VectorStore, error) {
	schemaData, err := os.ReadFile(filepath.Join(dir, schemaFile))
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var schema indexSchema
	if err := json.Unmarshal(schemaData, &schema); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if kind != "" && schema.IndexType != kind {
		return nil, fmt.Errorf("index kind mismatch: stored %s, configured %s", schema.IndexType, kind)
	}
	if dimensions > 0 && schema.Dimensions != dimensions {
		return nil, fmt.Errorf("dimension mismatch: stored %d, configured %d", schema.Dimensions, dimensions)
	}

	s, err := NewVectorStore(schema.IndexType, schema.Dimensions)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, fmt.Errorf("open vectors file: %w", err)
	}
	defer f.Close()
	var vecs [][]float32
	if err := gob.NewDecoder(f).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("decode vectors: %w", err)
	}

	chunkData, err := os.ReadFile(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, fmt.Errorf("read chunks file: %w", err)
	}
	var chunks []StoredChunk
	if err := json.Unmarshal(chunkData, &chunks); err != nil {
		return nil, fmt.Errorf("parse chunks file: %w", err)
	}
	if len(chunks) != len(vecs) {
		return nil, fmt.Errorf("stored chunk/vector count mismatch: %d vs %d", len(chunks), len(vecs))
	}

	if _, err := s.Insert(chunks, vecs); err != nil {
		return nil, err
	}
	return s, nil
}
