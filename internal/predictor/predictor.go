// Package predictor implements the Predictor contract: given a
// transaction and a candidate, return a predicted authorization
// probability, processing time, and health classification — or fail with
// PredictorUnavailable. See spec.md §4.2.
//
// Three variants share one interface so the Router never special-cases
// any of them (spec.md §9): LocalEnsemble is a deterministic
// feature-weighted arithmetic model, NullPredictor always reports
// unavailable, and RemotePredictor calls out to a remote model service.
package predictor

import (
	"context"
	"errors"

	"github.com/nimbus-psp/psp-router/internal/model"
)

// Predictor is the contract every variant implements.
type Predictor interface {
	// Predict returns a Prediction or fails with ErrUnavailable — callers
	// treat any error as PredictorUnavailable, per spec.md §7 (it is never
	// surfaced to Decide's caller, only swallowed into the Scorer's
	// fallback path).
	Predict(ctx context.Context, txn model.Transaction, candidate model.Candidate) (model.Prediction, error)
	// IsReady is a non-blocking liveness probe.
	IsReady() bool
	// Status reports the full readiness state machine value plus model
	// version, for the exposed ModelStatus() operation.
	Status() model.ModelStatus
}

// ErrUnavailable is returned by every variant's Predict when prediction
// cannot be produced within contract (timeout, not ready, head failure).
// Deliberately not an *errs.Error: PredictorUnavailable is recovered
// locally by the Scorer's fallback path and never part of the surfaced
// error taxonomy (spec.md §7).
var ErrUnavailable = errors.New("predictor unavailable")
