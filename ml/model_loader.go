package ml

import (
	"errors"
)

func LoadModel(modelType, path string) (ProbabilisticClassifier, error) {
	switch modelType {
	case "lasso_logistic":
		model := &LassoLogistic{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, errors.New("unsupported model type")
	}
}
