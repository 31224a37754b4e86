package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"textlabel/corpus"
)

// ErrInvalidProbability reports a classifier output outside [0,1]. The value
// is rejected rather than clamped so a misbehaving model is surfaced instead
// of silently ranked.
var ErrInvalidProbability = errors.New("probability outside [0,1]")

// Selection is one pool entry ranked for annotation. Score is the absolute
// distance of the predicted probability from the 0.5 decision boundary;
// lower means the model is less certain.
type Selection struct {
	Index       int     `json:"index"`
	Probability float64 `json:"probability"`
	Score       float64 `json:"score"`
}

// SelectUncertain scores every vector in the pool with the classifier and
// returns the n entries closest to the decision boundary, most uncertain
// first. Ties keep original pool order, so the result is deterministic.
//
// n must satisfy 0 <= n <= len(pool); n == 0 returns an empty selection
// regardless of pool contents. The function is pure: the pool and model are
// not modified.
func SelectUncertain(model ProbabilisticClassifier, pool []corpus.SparseVector, n int) ([]Selection, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if n < 0 {
		return nil, fmt.Errorf("selection count %d must be non-negative", n)
	}
	if n == 0 {
		return []Selection{}, nil
	}
	if len(pool) == 0 {
		return nil, errors.New("pool is empty")
	}
	if n > len(pool) {
		return nil, fmt.Errorf("selection count %d exceeds pool size %d", n, len(pool))
	}

	dim := model.NumFeatures()
	for i, vec := range pool {
		if vec.Dim != dim {
			return nil, fmt.Errorf("pool item %d: vector dimension %d does not match model features %d", i, vec.Dim, dim)
		}
	}

	scored := make([]Selection, len(pool))
	for i, vec := range pool {
		p, err := model.PredictProbability(vec)
		if err != nil {
			return nil, fmt.Errorf("pool item %d: %w", i, err)
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("pool item %d: %w: got %v", i, ErrInvalidProbability, p)
		}
		scored[i] = Selection{Index: i, Probability: p, Score: math.Abs(p - 0.5)}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score < scored[b].Score
	})
	return scored[:n], nil
}
