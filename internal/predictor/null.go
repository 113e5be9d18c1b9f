package predictor

import (
	"context"

	"github.com/nimbus-psp/psp-router/internal/model"
)

// NullPredictor always reports unavailable. It exists so "predictor
// turned off" is an ordinary Predictor value rather than a nil check
// scattered through the Router, per spec.md §9's tagged-variant guidance.
type NullPredictor struct{}

func (NullPredictor) Predict(ctx context.Context, txn model.Transaction, candidate model.Candidate) (model.Prediction, error) {
	return model.Prediction{}, ErrUnavailable
}

func (NullPredictor) IsReady() bool { return false }

func (NullPredictor) Status() model.ModelStatus {
	return model.ModelStatus{State: model.ModelFailed}
}
