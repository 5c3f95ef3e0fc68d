package gallery

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch means a query or stored vector does not match the
// gallery's embedding dimension. This is a configuration fault, typically a
// model change without re-enrollment, and is never treated as "no match".
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Match is a gallery row that scored at or above the accept threshold.
type Match struct {
	StudentID  string  `json:"student_id"`
	ViewType   string  `json:"view_type"`
	Similarity float64 `json:"similarity"`
}

// Match scores a query embedding against every gallery row and returns the
// best row at or above threshold, or nil when nothing clears it. The second
// return is the best similarity seen regardless of acceptance, for
// diagnostics. Ties resolve to the lowest row index, so results are stable
// across runs.
func (s *Snapshot) Match(q []float32, threshold float64) (*Match, float64, error) {
	sims, err := s.similarities(q)
	if err != nil {
		return nil, 0, err
	}
	if len(sims) == 0 {
		return nil, 0, nil
	}

	best := 0
	for i, v := range sims {
		if v > sims[best] {
			best = i
		}
	}
	bestSim := sims[best]
	if bestSim < threshold {
		return nil, bestSim, nil
	}
	return &Match{
		StudentID:  s.meta[best].StudentID,
		ViewType:   s.meta[best].ViewType,
		Similarity: bestSim,
	}, bestSim, nil
}

// TopK returns the k highest-scoring rows in descending order, without
// applying any threshold. Useful for debugging recognition quality.
func (s *Snapshot) TopK(q []float32, k int) ([]Match, error) {
	sims, err := s.similarities(q)
	if err != nil {
		return nil, err
	}

	idx := make([]int, len(sims))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return sims[idx[a]] > sims[idx[b]] })

	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Match, 0, k)
	for _, i := range idx[:k] {
		out = append(out, Match{
			StudentID:  s.meta[i].StudentID,
			ViewType:   s.meta[i].ViewType,
			Similarity: sims[i],
		})
	}
	return out, nil
}

// similarities computes cosine similarity of q against every row as a single
// matrix-vector product. Rows are unit-normalized at build time, so the dot
// product with a unit-normalized query is the cosine.
func (s *Snapshot) similarities(q []float32) ([]float64, error) {
	if s.Len() == 0 {
		return nil, nil
	}
	if len(q) != s.dim {
		return nil, ErrDimensionMismatch
	}

	qv := make([]float64, len(q))
	for i, v := range q {
		qv[i] = float64(v)
	}
	unitNormalize(qv)

	out := mat.NewVecDense(s.Len(), nil)
	out.MulVec(s.g, mat.NewVecDense(s.dim, qv))
	return out.RawVector().Data, nil
}

const normEpsilon = 1e-8

func unitNormalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i := range v {
		v[i] /= norm
	}
}
