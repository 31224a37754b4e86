package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"textlabel/corpus"
)

// LassoLogistic is a binary logistic regression with an L1 penalty on the
// weights, trained by proximal gradient descent with soft-thresholding.
// The intercept is not penalized. Features are raw term counts: columns are
// not standardized because centering sparse counts would densify the matrix.
type LassoLogistic struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Lambda    float64   `json:"lambda"`

	MaxIter int     `json:"-"`
	Tol     float64 `json:"-"`
}

func NewLassoLogistic(lambda float64) *LassoLogistic {
	if lambda < 0 {
		lambda = 0
	}
	return &LassoLogistic{
		Lambda:  lambda,
		MaxIter: 500,
		Tol:     1e-5,
	}
}

func (m *LassoLogistic) Train(rows []corpus.SparseVector, labels []int) error {
	if len(rows) == 0 || len(labels) == 0 {
		return errors.New("rows or labels empty")
	}
	if len(rows) != len(labels) {
		return errors.New("rows and labels size mismatch")
	}
	dim := rows[0].Dim
	if dim <= 0 {
		return errors.New("rows have zero dimension")
	}
	for i, row := range rows {
		if row.Dim != dim {
			return fmt.Errorf("row %d dimension %d does not match %d", i, row.Dim, dim)
		}
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	if m.MaxIter <= 0 {
		m.MaxIter = 500
	}
	if m.Tol <= 0 {
		m.Tol = 1e-5
	}

	n := float64(len(rows))

	// Step size from the Lipschitz bound of the averaged logistic loss:
	// L <= trace(X'X) / (4n) = mean squared row norm / 4.
	var sumSq float64
	for _, row := range rows {
		for _, v := range row.Values {
			sumSq += v * v
		}
	}
	lip := sumSq / (4 * n)
	if lip < 1e-12 {
		lip = 1e-12
	}
	step := 1 / lip

	weights := make([]float64, dim)
	intercept := 0.0
	grad := make([]float64, dim)

	for iter := 0; iter < m.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradIntercept := 0.0
		for i, row := range rows {
			z := intercept
			for k, idx := range row.Indices {
				z += weights[idx] * row.Values[k]
			}
			residual := sigmoid(z) - float64(labels[i])
			gradIntercept += residual
			for k, idx := range row.Indices {
				grad[idx] += residual * row.Values[k]
			}
		}
		gradIntercept /= n

		maxDelta := 0.0
		for j := 0; j < dim; j++ {
			updated := softThreshold(weights[j]-step*grad[j]/n, step*m.Lambda)
			if delta := math.Abs(updated - weights[j]); delta > maxDelta {
				maxDelta = delta
			}
			weights[j] = updated
		}
		newIntercept := intercept - step*gradIntercept
		if delta := math.Abs(newIntercept - intercept); delta > maxDelta {
			maxDelta = delta
		}
		intercept = newIntercept

		if maxDelta < m.Tol {
			break
		}
	}

	m.Weights = weights
	m.Intercept = intercept
	return nil
}

func (m *LassoLogistic) PredictProbability(vec corpus.SparseVector) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, errors.New("model not trained")
	}
	if vec.Dim != len(m.Weights) {
		return 0, fmt.Errorf("vector dimension %d does not match model features %d", vec.Dim, len(m.Weights))
	}
	z := m.Intercept
	for k, idx := range vec.Indices {
		if idx < 0 || idx >= len(m.Weights) {
			return 0, fmt.Errorf("feature index %d out of range", idx)
		}
		z += m.Weights[idx] * vec.Values[k]
	}
	return sigmoid(z), nil
}

func (m *LassoLogistic) NumFeatures() int {
	return len(m.Weights)
}

// NonZeroWeights reports how many coefficients survived the L1 penalty.
func (m *LassoLogistic) NonZeroWeights() int {
	count := 0
	for _, w := range m.Weights {
		if w != 0 {
			count++
		}
	}
	return count
}

func (m *LassoLogistic) Save(path string) error {
	if len(m.Weights) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (m *LassoLogistic) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var loaded LassoLogistic
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return err
	}
	if len(loaded.Weights) == 0 {
		return errors.New("model file has no weights")
	}
	m.Weights = loaded.Weights
	m.Intercept = loaded.Intercept
	m.Lambda = loaded.Lambda
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softThreshold(x, threshold float64) float64 {
	switch {
	case x > threshold:
		return x - threshold
	case x < -threshold:
		return x + threshold
	default:
		return 0
	}
}
