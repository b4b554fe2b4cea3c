package rag

import (
	"container/heap"
	"math"
	"math/rand"
)

const (
	hnswM        = 16  // max neighbors per node above layer 0
	hnswEfBuild  = 100 // candidate pool during construction
	hnswEfSearch = 64  // candidate pool during search
)

// hnswIndex is a hierarchical navigable small-world graph. Nodes get a
// random level; upper layers form a sparse routing structure and layer 0
// holds every vector. No training phase: the graph grows per insertion.
type hnswIndex struct {
	dim    int
	vecs   [][]float32
	levels []int
	// links[l][id] lists the neighbor ids of id at layer l
	links []map[int][]int

	entry    int
	maxLevel int
	rng      *rand.Rand
	levelMul float64
}

func newHNSWIndex(dim int) *hnswIndex {
	return &hnswIndex{
		dim:      dim,
		entry:    -1,
		maxLevel: -1,
		rng:      rand.New(rand.NewSource(1)),
		levelMul: 1.0 / math.Log(float64(hnswM)),
	}
}

func (ix *hnswIndex) randomLevel() int {
	return int(-math.Log(ix.rng.Float64()) * ix.levelMul)
}

func (ix *hnswIndex) Add(vecs [][]float32) {
	for _, v := range vecs {
		ix.insert(v)
	}
}

func (ix *hnswIndex) insert(v []float32) {
	id := len(ix.vecs)
	level := ix.randomLevel()
	ix.vecs = append(ix.vecs, v)
	ix.levels = append(ix.levels, level)
	for len(ix.links) <= level {
		ix.links = append(ix.links, map[int][]int{})
	}

	if ix.entry < 0 {
		ix.entry = id
		ix.maxLevel = level
		return
	}

	// greedy descent through layers above the insertion level
	cur := ix.entry
	for l := ix.maxLevel; l > level; l-- {
		cur = ix.greedyClosest(v, cur, l)
	}

	// connect on each layer from min(level, maxLevel) down to 0
	top := level
	if top > ix.maxLevel {
		top = ix.maxLevel
	}
	for l := top; l >= 0; l-- {
		cands := ix.searchLayer(v, cur, hnswEfBuild, l)
		m := hnswM
		if l == 0 {
			m = 2 * hnswM
		}
		neighbors := cands
		if len(neighbors) > m {
			neighbors = neighbors[:m]
		}
		for _, nb := range neighbors {
			ix.links[l][id] = append(ix.links[l][id], nb.id)
			ix.links[l][nb.id] = append(ix.links[l][nb.id], id)
			ix.shrink(nb.id, l, m)
		}
		if len(cands) > 0 {
			cur = cands[0].id
		}
	}

	if level > ix.maxLevel {
		ix.maxLevel = level
		ix.entry = id
	}
}

// shrink trims a node's neighbor list back to m by keeping the closest.
func (ix *hnswIndex) shrink(id, l, m int) {
	nbs := ix.links[l][id]
	if len(nbs) <= m {
		return
	}
	h := &maxHeap{}
	for _, nb := range nbs {
		h.offer(hit{id: nb, dist: l2(ix.vecs[id], ix.vecs[nb])}, m)
	}
	kept := make([]int, 0, m)
	for _, c := range h.sorted() {
		kept = append(kept, c.id)
	}
	ix.links[l][id] = kept
}

// greedyClosest walks layer l toward v until no neighbor improves.
func (ix *hnswIndex) greedyClosest(v []float32, start, l int) int {
	cur := start
	curDist := l2(v, ix.vecs[cur])
	for {
		improved := false
		for _, nb := range ix.links[l][cur] {
			if d := l2(v, ix.vecs[nb]); d < curDist {
				cur, curDist = nb, d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// minHeap orders candidates by ascending distance.
type minHeap []hit

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(hit)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// searchLayer is the ef-bounded best-first search at a single layer,
// returning up to ef results in ascending distance.
func (ix *hnswIndex) searchLayer(v []float32, start, ef, l int) []hit {
	startHit := hit{id: start, dist: l2(v, ix.vecs[start])}
	visited := map[int]bool{start: true}
	candidates := &minHeap{startHit}
	results := &maxHeap{startHit}
	heap.Init(candidates)
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(hit)
		if c.dist > (*results)[0].dist && results.Len() >= ef {
			break
		}
		for _, nb := range ix.links[l][c.id] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := l2(v, ix.vecs[nb])
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, hit{id: nb, dist: d})
				results.offer(hit{id: nb, dist: d}, ef)
			}
		}
	}
	return results.sorted()
}

func (ix *hnswIndex) Search(query []float32, k int) []hit {
	if k <= 0 || len(ix.vecs) == 0 {
		return nil
	}
	cur := ix.entry
	for l := ix.maxLevel; l > 0; l-- {
		cur = ix.greedyClosest(query, cur, l)
	}
	ef := hnswEfSearch
	if ef < k {
		ef = k
	}
	res := ix.searchLayer(query, cur, ef, 0)
	if len(res) > k {
		res = res[:k]
	}
	return res
}

func (ix *hnswIndex) Len() int     { return len(ix.vecs) }
func (ix *hnswIndex) Kind() string { return IndexHNSW }
