package retrieval

import (
	"container/heap"
	"math"
)

// term is one non-zero coordinate of a sparse vector.
type term struct {
	idx int
	val float64
}

// sparseVec is a sparse vector with coordinates sorted by idx.
type sparseVec []term

// norm returns the L2 norm of a vector.
func (v sparseVec) norm() float64 {
	var sum float64
	for _, t := range v {
		sum += t.val * t.val
	}
	return math.Sqrt(sum)
}

// normalize scales v to unit length in place. A zero vector is left as is.
func (v sparseVec) normalize() {
	n := v.norm()
	if n == 0 {
		return
	}
	for i := range v {
		v[i].val /= n
	}
}

// cosine computes dot(a,b) / (|a| * |b|) over two sorted sparse vectors.
// aNorm is the precomputed L2 norm of a.
func cosine(a, b sparseVec, aNorm float64) float64 {
	if aNorm == 0 || len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, bNormSq float64
	i, j := 0, 0
	for _, t := range b {
		bNormSq += t.val * t.val
	}
	for i < len(a) && j < len(b) {
		switch {
		case a[i].idx == b[j].idx:
			dot += a[i].val * b[j].val
			i++
			j++
		case a[i].idx < b[j].idx:
			i++
		default:
			j++
		}
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return dot / (aNorm * bNorm)
}

// rowScore holds a row index and its similarity to the query.
type rowScore struct {
	Row   int
	Score float64
}

// topK scans every row and returns the k most similar, best first.
func topK(query sparseVec, rows []sparseVec, k int) []rowScore {
	if k <= 0 {
		return nil
	}
	qNorm := query.norm()
	if qNorm == 0 {
		return nil
	}

	h := &rowScoreHeap{}
	heap.Init(h)
	for i, row := range rows {
		score := cosine(query, row, qNorm)
		if h.Len() < k {
			heap.Push(h, rowScore{Row: i, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = rowScore{Row: i, Score: score}
			heap.Fix(h, 0)
		}
	}

	out := make([]rowScore, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(rowScore)
	}
	return out
}

// rowScoreHeap is a min-heap of rowScore ordered by Score.
// Used during the scan to keep the current top-K candidates.
type rowScoreHeap []rowScore

func (h rowScoreHeap) Len() int            { return len(h) }
func (h rowScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h rowScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rowScoreHeap) Push(x interface{}) { *h = append(*h, x.(rowScore)) }
func (h *rowScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
