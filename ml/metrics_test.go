package ml

import (
	"math"
	"testing"
)

func TestEvaluateConfusionMatrix(t *testing.T) {
	// echoModel predicts the stored value, labels chosen to produce a
	// known confusion matrix at threshold 0.5:
	// TP=2, TN=1, FP=1, FN=1.
	rows := probPool(0.9, 0.6, 0.2, 0.7, 0.4)
	labels := []int{1, 1, 0, 0, 1}

	report, err := Evaluate(echoModel{}, rows, labels, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cm := report.Confusion
	if cm.TruePositive != 2 || cm.TrueNegative != 1 || cm.FalsePositive != 1 || cm.FalseNegative != 1 {
		t.Fatalf("unexpected confusion matrix: %+v", cm)
	}
	if report.Accuracy != 0.6 {
		t.Fatalf("expected accuracy 0.6, got %f", report.Accuracy)
	}
	if math.Abs(report.Precision-2.0/3.0) > 1e-12 {
		t.Fatalf("expected precision 2/3, got %f", report.Precision)
	}
	if math.Abs(report.Recall-2.0/3.0) > 1e-12 {
		t.Fatalf("expected recall 2/3, got %f", report.Recall)
	}
	if math.Abs(report.F1-2.0/3.0) > 1e-12 {
		t.Fatalf("expected f1 2/3, got %f", report.F1)
	}
}

func TestEvaluateValidatesInput(t *testing.T) {
	if _, err := Evaluate(echoModel{}, nil, nil, 0.5); err == nil {
		t.Fatal("expected error for empty rows")
	}
	if _, err := Evaluate(echoModel{}, probPool(0.5), []int{1, 0}, 0.5); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}

func TestEvaluateDegenerateThresholdFallsBack(t *testing.T) {
	rows := probPool(0.9, 0.1)
	labels := []int{1, 0}
	report, err := Evaluate(echoModel{}, rows, labels, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Threshold != 0.5 {
		t.Fatalf("expected threshold fallback to 0.5, got %f", report.Threshold)
	}
	if report.Accuracy != 1 {
		t.Fatalf("expected perfect accuracy, got %f", report.Accuracy)
	}
}

func TestEvaluateNoPositivePredictions(t *testing.T) {
	rows := probPool(0.1, 0.2)
	labels := []int{1, 0}
	report, err := Evaluate(echoModel{}, rows, labels, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Precision != 0 || report.F1 != 0 {
		t.Fatalf("expected zero precision and f1, got %f %f", report.Precision, report.F1)
	}
}
