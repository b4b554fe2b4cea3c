package rag

import "math/rand"

const (
	ivfDefaultLists  = 16
	ivfDefaultProbes = 4
	ivfTrainRounds   = 10
)

// ivfIndex partitions vectors into nlist clusters around k-means centroids
// and searches only the nprobe clusters nearest the query. Training runs on
// the first insertion once at least one vector exists; until then the index
// is empty and all vectors of the first Add become the training set.
type ivfIndex struct {
	dim    int
	nlist  int
	nprobe int

	centroids [][]float32
	lists     [][]int // cluster -> vector ids
	vecs      [][]float32

	rng *rand.Rand
}

func newIVFIndex(dim int) *ivfIndex {
	return &ivfIndex{
		dim:    dim,
		nlist:  ivfDefaultLists,
		nprobe: ivfDefaultProbes,
		rng:    rand.New(rand.NewSource(1)),
	}
}

func (ix *ivfIndex) Add(vecs [][]float32) {
	if len(vecs) == 0 {
		return
	}
	if ix.centroids == nil {
		ix.train(vecs)
	}
	for _, v := range vecs {
		id := len(ix.vecs)
		ix.vecs = append(ix.vecs, v)
		c := ix.nearestCentroid(v)
		ix.lists[c] = append(ix.lists[c], id)
	}
}

// train runs k-means over the sample. With fewer samples than nlist the
// cluster count shrinks to the sample size.
func (ix *ivfIndex) train(sample [][]float32) {
	n := ix.nlist
	if n > len(sample) {
		n = len(sample)
	}
	centroids := make([][]float32, n)
	perm := ix.rng.Perm(len(sample))
	for i := 0; i < n; i++ {
		c := make([]float32, ix.dim)
		copy(c, sample[perm[i]])
		centroids[i] = c
	}

	assign := make([]int, len(sample))
	for round := 0; round < ivfTrainRounds; round++ {
		changed := false
		for i, v := range sample {
			best, bestDist := 0, l2(v, centroids[0])
			for c := 1; c < n; c++ {
				if d := l2(v, centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed && round > 0 {
			break
		}
		sums := make([][]float32, n)
		counts := make([]int, n)
		for c := range sums {
			sums[c] = make([]float32, ix.dim)
		}
		for i, v := range sample {
			c := assign[i]
			counts[c]++
			for j, x := range v {
				sums[c][j] += x
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			for j := range centroids[c] {
				centroids[c][j] = sums[c][j] / float32(counts[c])
			}
		}
	}

	ix.centroids = centroids
	ix.lists = make([][]int, n)
}

func (ix *ivfIndex) nearestCentroid(v []float32) int {
	best, bestDist := 0, l2(v, ix.centroids[0])
	for c := 1; c < len(ix.centroids); c++ {
		if d := l2(v, ix.centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func (ix *ivfIndex) Search(query []float32, k int) []hit {
	if k <= 0 || len(ix.vecs) == 0 {
		return nil
	}
	nprobe := ix.nprobe
	if nprobe > len(ix.centroids) {
		nprobe = len(ix.centroids)
	}

	// rank clusters by centroid distance, scan the closest nprobe
	ch := &maxHeap{}
	for c, centroid := range ix.centroids {
		ch.offer(hit{id: c, dist: l2(query, centroid)}, nprobe)
	}

	h := &maxHeap{}
	for _, cl := range ch.sorted() {
		for _, id := range ix.lists[cl.id] {
			h.offer(hit{id: id, dist: l2(query, ix.vecs[id])}, k)
		}
	}
	return h.sorted()
}

func (ix *ivfIndex) Len() int     { return len(ix.vecs) }
func (ix *ivfIndex) Kind() string { return IndexIVF }
