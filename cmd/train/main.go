package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"textlabel/corpus"
	"textlabel/ml"
	"textlabel/pipeline"

	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	dataPath := flag.String("data", "", "labeled CSV (id,text,label columns)")
	encoding := flag.String("encoding", "utf-8", "csv encoding (utf-8 or gbk)")
	folds := flag.Int("folds", 5, "cross-validation folds")
	lambdaList := flag.String("lambdas", "0.0001,0.001,0.01,0.1", "comma-separated lambda grid")
	workers := flag.Int("workers", 4, "cross-validation worker pool size")
	seed := flag.Int64("seed", 1, "fold assignment seed")
	minTermFreq := flag.Float64("min_term_freq", 2, "minimum total term count")
	minDocFreq := flag.Int("min_doc_freq", 2, "minimum document frequency")
	testRatio := flag.Float64("test_ratio", 0.2, "holdout ratio")
	threshold := flag.Float64("threshold", 0.5, "classification threshold")
	modelPath := flag.String("model_path", "./models/lasso.model", "model output path")
	vocabPath := flag.String("vocab_path", "./models/vocab.json", "vocabulary output path")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	lambdas, err := parseLambdas(*lambdaList)
	if err != nil {
		log.Fatalf("invalid lambdas: %v", err)
	}

	docs, err := pipeline.ReadLabeledCSV(*dataPath, *encoding)
	if err != nil {
		log.Fatalf("failed to read training data: %v", err)
	}
	log.Printf("loaded %d labeled documents", len(docs))

	texts := make([]string, len(docs))
	labels := make([]int, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
		labels[i] = doc.Label
	}

	tokenizer := corpus.NewTokenizer(corpus.DefaultTokenizerConfig())
	dfm, err := corpus.BuildDFM(texts, tokenizer)
	if err != nil {
		log.Fatalf("failed to build document-feature matrix: %v", err)
	}
	log.Printf("vocabulary: %d terms before trimming", dfm.Vocab.Size())

	dfm, err = dfm.Trim(*minTermFreq, *minDocFreq)
	if err != nil {
		log.Fatalf("failed to trim matrix: %v", err)
	}
	log.Printf("vocabulary: %d terms after trimming", dfm.Vocab.Size())

	trainRows, trainLabels, testRows, testLabels := splitDataset(dfm.Rows, labels, *testRatio)

	cv, err := ml.CrossValidate(trainRows, trainLabels, ml.CrossValConfig{
		Folds:   *folds,
		Lambdas: lambdas,
		Workers: *workers,
		Seed:    *seed,
	})
	if err != nil {
		log.Fatalf("cross-validation failed: %v", err)
	}
	printLambdaPath(cv)

	model := ml.NewLassoLogistic(cv.Best.Lambda)
	if err := model.Train(trainRows, trainLabels); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}
	log.Printf("final model: lambda=%g nonzero=%d/%d", cv.Best.Lambda, model.NonZeroWeights(), dfm.Vocab.Size())

	report, err := ml.Evaluate(model, testRows, testLabels, *threshold)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	printReport(report)

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		log.Fatalf("failed to create model dir: %v", err)
	}
	if err := model.Save(*modelPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	if err := dfm.Vocab.Save(*vocabPath); err != nil {
		log.Fatalf("failed to save vocabulary: %v", err)
	}

	fmt.Printf("model saved to %s\n", *modelPath)
	fmt.Printf("vocabulary saved to %s\n", *vocabPath)
}

func parseLambdas(list string) ([]float64, error) {
	parts := strings.Split(list, ",")
	lambdas := make([]float64, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		if value < 0 || math.IsNaN(value) {
			return nil, fmt.Errorf("lambda %v out of range", value)
		}
		lambdas = append(lambdas, value)
	}
	return lambdas, nil
}

func splitDataset(rows []corpus.SparseVector, labels []int, testRatio float64) (trainRows []corpus.SparseVector, trainLabels []int, testRows []corpus.SparseVector, testLabels []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(42))
	indices := rnd.Perm(len(rows))

	split := len(rows) - int(float64(len(rows))*testRatio)
	for i, idx := range indices {
		if i < split {
			trainRows = append(trainRows, rows[idx])
			trainLabels = append(trainLabels, labels[idx])
		} else {
			testRows = append(testRows, rows[idx])
			testLabels = append(testLabels, labels[idx])
		}
	}
	return trainRows, trainLabels, testRows, testLabels
}

func printLambdaPath(cv *ml.CrossValResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Lambda", "Mean Deviance", "Mean Accuracy", "Nonzero"})
	for _, r := range cv.Results {
		marker := ""
		if r.Lambda == cv.Best.Lambda {
			marker = " *"
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("%g%s", r.Lambda, marker),
			fmt.Sprintf("%.4f", r.MeanDeviance),
			fmt.Sprintf("%.4f", r.MeanAccuracy),
			fmt.Sprintf("%.1f", r.MeanNonZero),
		})
	}
	t.Render()
}

func printReport(report *ml.ClassificationReport) {
	cm := table.NewWriter()
	cm.SetOutputMirror(os.Stdout)
	cm.AppendHeader(table.Row{"", "Predicted 0", "Predicted 1"})
	cm.AppendRow(table.Row{"Actual 0", report.Confusion.TrueNegative, report.Confusion.FalsePositive})
	cm.AppendRow(table.Row{"Actual 1", report.Confusion.FalseNegative, report.Confusion.TruePositive})
	cm.Render()

	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.AppendHeader(table.Row{"Accuracy", "Precision", "Recall", "F1", "Samples"})
	summary.AppendRow(table.Row{
		fmt.Sprintf("%.4f", report.Accuracy),
		fmt.Sprintf("%.4f", report.Precision),
		fmt.Sprintf("%.4f", report.Recall),
		fmt.Sprintf("%.4f", report.F1),
		report.Samples,
	})
	summary.Render()
}
