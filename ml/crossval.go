package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"textlabel/corpus"
)

// CrossValConfig controls k-fold cross-validation over a lambda grid.
// Workers is the size of the fold worker pool and is passed explicitly;
// there is no process-global parallel backend to register.
type CrossValConfig struct {
	Folds   int
	Lambdas []float64
	Workers int
	Seed    int64
}

func DefaultCrossValConfig() CrossValConfig {
	return CrossValConfig{
		Folds:   5,
		Lambdas: []float64{0.0001, 0.001, 0.01, 0.1},
		Workers: 4,
		Seed:    1,
	}
}

type LambdaResult struct {
	Lambda       float64 `json:"lambda"`
	MeanDeviance float64 `json:"mean_deviance"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	MeanNonZero  float64 `json:"mean_nonzero"`
}

type CrossValResult struct {
	Results []LambdaResult `json:"results"`
	Best    LambdaResult   `json:"best"`
}

// CrossValidate fits one lasso model per (lambda, fold) pair and reports the
// mean validation deviance per lambda. Best is the lambda with the lowest
// mean deviance; on a tie the larger (sparser) lambda wins. Results are
// deterministic for a fixed seed regardless of the worker count.
func CrossValidate(rows []corpus.SparseVector, labels []int, config CrossValConfig) (*CrossValResult, error) {
	if len(rows) != len(labels) {
		return nil, errors.New("rows and labels size mismatch")
	}
	if config.Folds < 2 {
		return nil, errors.New("folds must be at least 2")
	}
	if len(rows) < config.Folds {
		return nil, fmt.Errorf("need at least %d rows for %d folds", config.Folds, config.Folds)
	}
	if len(config.Lambdas) == 0 {
		return nil, errors.New("lambda grid is empty")
	}
	for _, lambda := range config.Lambdas {
		if lambda < 0 {
			return nil, fmt.Errorf("negative lambda %v", lambda)
		}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	rnd := rand.New(rand.NewSource(config.Seed))
	order := rnd.Perm(len(rows))
	foldOf := make([]int, len(rows))
	for i, idx := range order {
		foldOf[idx] = i % config.Folds
	}

	type job struct {
		lambdaIdx int
		fold      int
	}
	type foldScore struct {
		deviance float64
		accuracy float64
		nonZero  float64
	}

	jobs := make(chan job)
	scores := make([][]foldScore, len(config.Lambdas))
	for i := range scores {
		scores[i] = make([]foldScore, config.Folds)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				trainRows, trainLabels, valRows, valLabels := splitFold(rows, labels, foldOf, j.fold)
				model := NewLassoLogistic(config.Lambdas[j.lambdaIdx])
				if err := model.Train(trainRows, trainLabels); err != nil {
					setErr(fmt.Errorf("lambda %v fold %d: %w", config.Lambdas[j.lambdaIdx], j.fold, err))
					continue
				}
				deviance, accuracy, err := validationScore(model, valRows, valLabels)
				if err != nil {
					setErr(fmt.Errorf("lambda %v fold %d: %w", config.Lambdas[j.lambdaIdx], j.fold, err))
					continue
				}
				scores[j.lambdaIdx][j.fold] = foldScore{
					deviance: deviance,
					accuracy: accuracy,
					nonZero:  float64(model.NonZeroWeights()),
				}
			}
		}()
	}

	for lambdaIdx := range config.Lambdas {
		for fold := 0; fold < config.Folds; fold++ {
			jobs <- job{lambdaIdx: lambdaIdx, fold: fold}
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	result := &CrossValResult{Results: make([]LambdaResult, len(config.Lambdas))}
	for lambdaIdx, lambda := range config.Lambdas {
		var sum foldScore
		for _, s := range scores[lambdaIdx] {
			sum.deviance += s.deviance
			sum.accuracy += s.accuracy
			sum.nonZero += s.nonZero
		}
		k := float64(config.Folds)
		result.Results[lambdaIdx] = LambdaResult{
			Lambda:       lambda,
			MeanDeviance: sum.deviance / k,
			MeanAccuracy: sum.accuracy / k,
			MeanNonZero:  sum.nonZero / k,
		}
	}

	best := result.Results[0]
	for _, r := range result.Results[1:] {
		if r.MeanDeviance < best.MeanDeviance ||
			(r.MeanDeviance == best.MeanDeviance && r.Lambda > best.Lambda) {
			best = r
		}
	}
	result.Best = best
	return result, nil
}

func splitFold(rows []corpus.SparseVector, labels []int, foldOf []int, fold int) (trainRows []corpus.SparseVector, trainLabels []int, valRows []corpus.SparseVector, valLabels []int) {
	for i := range rows {
		if foldOf[i] == fold {
			valRows = append(valRows, rows[i])
			valLabels = append(valLabels, labels[i])
		} else {
			trainRows = append(trainRows, rows[i])
			trainLabels = append(trainLabels, labels[i])
		}
	}
	return trainRows, trainLabels, valRows, valLabels
}

// validationScore returns binomial deviance (2x mean negative log-likelihood)
// and accuracy at the 0.5 threshold.
func validationScore(model ProbabilisticClassifier, rows []corpus.SparseVector, labels []int) (float64, float64, error) {
	if len(rows) == 0 {
		return 0, 0, errors.New("empty validation fold")
	}
	const eps = 1e-12
	var logLoss float64
	correct := 0
	for i, row := range rows {
		p, err := model.PredictProbability(row)
		if err != nil {
			return 0, 0, err
		}
		if labels[i] == 1 {
			logLoss -= math.Log(math.Max(p, eps))
			if p >= 0.5 {
				correct++
			}
		} else {
			logLoss -= math.Log(math.Max(1-p, eps))
			if p < 0.5 {
				correct++
			}
		}
	}
	n := float64(len(rows))
	return 2 * logLoss / n, float64(correct) / n, nil
}
