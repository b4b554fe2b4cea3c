package rag

import (
	"container/heap"
	"fmt"
	"sort"
)

// Index kinds.
const (
	IndexFlat = "flat"
	IndexIVF  = "ivf"
	IndexHNSW = "hnsw"
)

// hit is an index search result: the position of the vector in insertion
// order and its L2 distance to the query.
type hit struct {
	id   int
	dist float32
}

// vectorIndex is the common surface of the three index kinds. Vector ids
// are assigned in insertion order starting at 0.
type vectorIndex interface {
	Add(vecs [][]float32)
	Search(query []float32, k int) []hit
	Len() int
	Kind() string
}

func newVectorIndex(kind string, dimensions int) (vectorIndex, error) {
	switch kind {
	case IndexFlat, "":
		return newFlatIndex(dimensions), nil
	case IndexIVF:
		return newIVFIndex(dimensions), nil
	case IndexHNSW:
		return newHNSWIndex(dimensions), nil
	default:
		return nil, fmt.Errorf("unknown index kind: %s", kind)
	}
}

// l2 returns the squared Euclidean distance. Squared distance preserves
// ordering, so ranking never needs the square root; callers that report a
// distance take it at the edge.
func l2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// maxHeap keeps the k smallest distances seen so far, largest on top.
type maxHeap []hit

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(hit)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *maxHeap) offer(c hit, k int) {
	if h.Len() < k {
		heap.Push(h, c)
	} else if c.dist < (*h)[0].dist {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// sorted drains the heap into ascending-distance order. Equal distances
// fall back to insertion order so results are deterministic.
func (h *maxHeap) sorted() []hit {
	out := make([]hit, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].id < out[j].id
	})
	return out
}

// flatIndex is the exact index: brute-force scan over every stored vector.
type flatIndex struct {
	dim  int
	vecs [][]float32
}

func newFlatIndex(dim int) *flatIndex { return &flatIndex{dim: dim} }

func (f *flatIndex) Add(vecs [][]float32) {
	f.vecs = append(f.vecs, vecs...)
}

func (f *flatIndex) Search(query []float32, k int) []hit {
	if k <= 0 || len(f.vecs) == 0 {
		return nil
	}
	h := &maxHeap{}
	for id, v := range f.vecs {
		h.offer(hit{id: id, dist: l2(query, v)}, k)
	}
	return h.sorted()
}

func (f *flatIndex) Len() int     { return len(f.vecs) }
func (f *flatIndex) Kind() string { return IndexFlat }
