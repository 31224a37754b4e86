package ml

import (
	"errors"
	"fmt"

	"textlabel/corpus"
)

type ConfusionMatrix struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

type ClassificationReport struct {
	Confusion ConfusionMatrix `json:"confusion"`
	Threshold float64         `json:"threshold"`
	Accuracy  float64         `json:"accuracy"`
	Precision float64         `json:"precision"`
	Recall    float64         `json:"recall"`
	F1        float64         `json:"f1"`
	Samples   int             `json:"samples"`
}

// Evaluate classifies every row at the given probability threshold and
// accumulates confusion-matrix metrics against the true labels.
func Evaluate(model ProbabilisticClassifier, rows []corpus.SparseVector, labels []int, threshold float64) (*ClassificationReport, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to evaluate")
	}
	if len(rows) != len(labels) {
		return nil, errors.New("rows and labels size mismatch")
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}

	report := &ClassificationReport{Threshold: threshold, Samples: len(rows)}
	for i, row := range rows {
		p, err := model.PredictProbability(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		predicted := 0
		if p >= threshold {
			predicted = 1
		}
		switch {
		case predicted == 1 && labels[i] == 1:
			report.Confusion.TruePositive++
		case predicted == 1 && labels[i] == 0:
			report.Confusion.FalsePositive++
		case predicted == 0 && labels[i] == 0:
			report.Confusion.TrueNegative++
		default:
			report.Confusion.FalseNegative++
		}
	}

	cm := report.Confusion
	report.Accuracy = float64(cm.TruePositive+cm.TrueNegative) / float64(report.Samples)
	if cm.TruePositive+cm.FalsePositive > 0 {
		report.Precision = float64(cm.TruePositive) / float64(cm.TruePositive+cm.FalsePositive)
	}
	if cm.TruePositive+cm.FalseNegative > 0 {
		report.Recall = float64(cm.TruePositive) / float64(cm.TruePositive+cm.FalseNegative)
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}
	return report, nil
}
