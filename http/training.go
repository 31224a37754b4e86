package http

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"textlabel/corpus"
	"textlabel/db"
	"textlabel/ml"

	"go.uber.org/zap"
)

// TrainingConfig 重训练配置
type TrainingConfig struct {
	ModelPath   string
	VocabPath   string
	MinExamples int
	TestRatio   float64
	Threshold   float64
	MinTermFreq float64
	MinDocFreq  int
	Tokenizer   corpus.TokenizerConfig
	CrossVal    ml.CrossValConfig
}

var (
	trainingConfigMu sync.RWMutex
	trainingConfig   *TrainingConfig

	trainingMu sync.Mutex
	training   bool
)

// SetTrainingConfig 配置重训练参数
func SetTrainingConfig(config TrainingConfig) {
	if config.MinExamples <= 0 {
		config.MinExamples = 20
	}
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = 0.2
	}
	if config.Threshold <= 0 || config.Threshold >= 1 {
		config.Threshold = 0.5
	}
	if config.MinDocFreq <= 0 {
		config.MinDocFreq = 2
	}
	if config.MinTermFreq <= 0 {
		config.MinTermFreq = 2
	}
	defaults := ml.DefaultCrossValConfig()
	if config.CrossVal.Folds < 2 {
		config.CrossVal.Folds = defaults.Folds
	}
	if len(config.CrossVal.Lambdas) == 0 {
		config.CrossVal.Lambdas = defaults.Lambdas
	}
	if config.CrossVal.Workers <= 0 {
		config.CrossVal.Workers = defaults.Workers
	}
	trainingConfigMu.Lock()
	trainingConfig = &config
	trainingConfigMu.Unlock()
}

func handleTrain(w http.ResponseWriter, r *http.Request) {
	trainingConfigMu.RLock()
	config := trainingConfig
	trainingConfigMu.RUnlock()
	if config == nil {
		http.Error(w, "training not configured", http.StatusServiceUnavailable)
		return
	}

	trainingMu.Lock()
	if training {
		trainingMu.Unlock()
		http.Error(w, "training already in progress", http.StatusConflict)
		return
	}
	training = true
	trainingMu.Unlock()

	go func() {
		defer func() {
			trainingMu.Lock()
			training = false
			trainingMu.Unlock()
		}()
		if err := trainModel(*config); err != nil {
			handlerLogger.Error("training failed", zap.Error(err))
			return
		}
		BroadcastModelUpdated()
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, `{"status":"training started"}`)
}

// trainModel 用全部已标注文档重训练模型并切换在线分类器
func trainModel(config TrainingConfig) error {
	labeled, err := db.QueryLabeled()
	if err != nil {
		return err
	}
	if len(labeled) < config.MinExamples {
		return fmt.Errorf("need at least %d labeled documents, have %d", config.MinExamples, len(labeled))
	}

	texts := make([]string, len(labeled))
	labels := make([]int, len(labeled))
	for i, doc := range labeled {
		texts[i] = doc.Text
		labels[i] = doc.Label
	}

	tokenizer := corpus.NewTokenizer(config.Tokenizer)
	dfm, err := corpus.BuildDFM(texts, tokenizer)
	if err != nil {
		return err
	}
	dfm, err = dfm.Trim(config.MinTermFreq, config.MinDocFreq)
	if err != nil {
		return err
	}

	trainRows, trainLabels, testRows, testLabels := splitDataset(dfm.Rows, labels, config.TestRatio)

	cv, err := ml.CrossValidate(trainRows, trainLabels, config.CrossVal)
	if err != nil {
		return err
	}

	model := ml.NewLassoLogistic(cv.Best.Lambda)
	if err := model.Train(trainRows, trainLabels); err != nil {
		return err
	}

	report, err := ml.Evaluate(model, testRows, testLabels, config.Threshold)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(config.ModelPath), 0o755); err != nil {
		return err
	}
	if err := model.Save(config.ModelPath); err != nil {
		return err
	}
	if err := dfm.Vocab.Save(config.VocabPath); err != nil {
		return err
	}

	entry := db.TrainingLog{
		ModelName:  "lasso_logistic",
		Lambda:     cv.Best.Lambda,
		Accuracy:   report.Accuracy,
		Precision:  report.Precision,
		Recall:     report.Recall,
		F1:         report.F1,
		TrainedAt:  time.Now().UTC(),
		DataPoints: len(labeled),
	}
	if err := db.SaveTrainingLog(entry); err != nil {
		return err
	}

	SetClassifier(&Classifier{
		Model:     model,
		Vocab:     dfm.Vocab,
		Tokenizer: tokenizer,
		Threshold: config.Threshold,
		ModelPath: config.ModelPath,
	})

	handlerLogger.Info("model retrained",
		zap.Float64("lambda", cv.Best.Lambda),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("f1", report.F1),
		zap.Int("data_points", len(labeled)))
	return nil
}

func splitDataset(rows []corpus.SparseVector, labels []int, testRatio float64) (trainRows []corpus.SparseVector, trainLabels []int, testRows []corpus.SparseVector, testLabels []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
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
