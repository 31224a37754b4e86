package ml

import (
	"textlabel/corpus"
)

// ProbabilisticClassifier maps a feature vector to the predicted probability
// of the positive class.
type ProbabilisticClassifier interface {
	PredictProbability(vec corpus.SparseVector) (float64, error)
	NumFeatures() int
}

type TrainableClassifier interface {
	ProbabilisticClassifier
	Train(rows []corpus.SparseVector, labels []int) error
	Save(path string) error
	Load(path string) error
}
