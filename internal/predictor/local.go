package predictor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimbus-psp/psp-router/internal/model"
)

// modelState is an atomic holder for model.ModelState, since the
// readiness state machine transitions from goroutines outside the
// request path (Load/Reload).
type modelState struct {
	v atomic.Value // model.ModelState
}

func (s *modelState) set(st model.ModelState) { s.v.Store(st) }
func (s *modelState) get() model.ModelState {
	if v, ok := s.v.Load().(model.ModelState); ok {
		return v
	}
	return model.ModelNotLoaded
}

// LocalEnsemble is a deterministic, feature-weighted arithmetic model: no
// external calls, three heads (success probability, processing time,
// health classification) evaluated from the same FeatureVector. Grounded
// on the teacher's processor.Processor shape generalized from
// Process(ctx, req)->ProcessorResponse to Predict(ctx, txn,
// candidate)->Prediction, and on its MockProcessor's degraded-mode toggle
// generalized into the full readiness state machine of spec.md §4.2.
type LocalEnsemble struct {
	mu           sync.Mutex
	state        modelState
	version      string
	timeout      time.Duration
	failureForce atomic.Bool // test seam: force every head to fail
}

// NewLocalEnsemble creates a LocalEnsemble in NotLoaded state. Call Load
// to transition it to Ready.
func NewLocalEnsemble(version string, timeout time.Duration) *LocalEnsemble {
	le := &LocalEnsemble{version: version, timeout: timeout}
	le.state.set(model.ModelNotLoaded)
	return le
}

// Load transitions NotLoaded -> Loading -> Ready | Failed. Safe to call
// once at startup; a model already Ready or Reloading is left untouched.
func (le *LocalEnsemble) Load(ctx context.Context) error {
	le.mu.Lock()
	defer le.mu.Unlock()

	switch le.state.get() {
	case model.ModelReady, model.ModelReloading, model.ModelLoading:
		return nil
	}

	le.state.set(model.ModelLoading)
	select {
	case <-ctx.Done():
		le.state.set(model.ModelFailed)
		return ctx.Err()
	default:
	}
	le.state.set(model.ModelReady)
	return nil
}

// Reload transitions Ready -> Reloading -> Ready, serving the previous
// snapshot throughout (LocalEnsemble has no snapshot to swap, so
// Reloading simply answers Predict identically to Ready, per spec.md
// §4.2's "Reloading, serving the previous snapshot").
func (le *LocalEnsemble) Reload(ctx context.Context) error {
	le.mu.Lock()
	defer le.mu.Unlock()

	if le.state.get() != model.ModelReady {
		return nil
	}
	le.state.set(model.ModelReloading)
	select {
	case <-ctx.Done():
		le.state.set(model.ModelFailed)
		return ctx.Err()
	default:
	}
	le.state.set(model.ModelReady)
	return nil
}

// SetFailing forces every subsequent head evaluation to fail, a test seam
// for exercising the Router's fallback path deterministically.
func (le *LocalEnsemble) SetFailing(failing bool) {
	le.failureForce.Store(failing)
}

func (le *LocalEnsemble) IsReady() bool {
	st := le.state.get()
	return st == model.ModelReady || st == model.ModelReloading
}

func (le *LocalEnsemble) Status() model.ModelStatus {
	return model.ModelStatus{State: le.state.get(), ModelVersion: le.version}
}

// Predict evaluates the three heads against a feature vector assembled
// from txn and candidate. Any single head failing (or the timeout
// expiring) fails the whole call with ErrUnavailable — no partial result.
func (le *LocalEnsemble) Predict(ctx context.Context, txn model.Transaction, candidate model.Candidate) (model.Prediction, error) {
	if !le.IsReady() || ctx.Err() != nil {
		return model.Prediction{}, ErrUnavailable
	}

	deadline := time.Now().Add(le.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	type result struct {
		pred model.Prediction
		err  error
	}
	done := make(chan result, 1)

	go func() {
		if le.failureForce.Load() {
			done <- result{err: ErrUnavailable}
			return
		}
		fv := AssembleFeatures(txn, candidate, time.Now())
		authHead, err := le.headAuthProbability(fv, candidate)
		if err != nil {
			done <- result{err: err}
			return
		}
		latencyHead, err := le.headProcessingTime(fv, candidate)
		if err != nil {
			done <- result{err: err}
			return
		}
		healthHead, err := le.headHealth(fv, candidate)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{pred: model.Prediction{
			PredictedAuthProbability: authHead,
			PredictedProcessingTime:  latencyHead,
			PredictedHealth:          healthHead,
			ModelVersion:             le.version,
			Timestamp:                time.Now(),
		}}
	}()

	select {
	case <-ctx.Done():
		return model.Prediction{}, ErrUnavailable
	case r := <-done:
		if r.err != nil {
			return model.Prediction{}, ErrUnavailable
		}
		return r.pred, nil
	}
}

// headAuthProbability blends the candidate's recent auth rate with a
// small risk-score and 3DS adjustment, clamped to [0,1].
func (le *LocalEnsemble) headAuthProbability(fv FeatureVector, candidate model.Candidate) (float64, error) {
	base := candidate.RecentAuthRate
	if base == 0 {
		base = candidate.AuthRate()
	}
	adjusted := base - 0.002*fv.RiskScore + 0.01*fv.Has3DS
	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 1 {
		adjusted = 1
	}
	return adjusted, nil
}

// headProcessingTime projects the candidate's rolling mean, nudged by
// amount (larger amounts run marginally slower in this model).
func (le *LocalEnsemble) headProcessingTime(fv FeatureVector, candidate model.Candidate) (float64, error) {
	base := candidate.MeanProcessingTime
	if base == 0 {
		base = 200
	}
	return base + fv.AmountLog10*5, nil
}

// headHealth returns the candidate's health as already classified by the
// Candidate Store; it does not reclassify from the feature vector. This
// head only informs the Scorer's yellow-health penalty, not a second
// source of truth.
func (le *LocalEnsemble) headHealth(fv FeatureVector, candidate model.Candidate) (model.Health, error) {
	return candidate.Health, nil
}
