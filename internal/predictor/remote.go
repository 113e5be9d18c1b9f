package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nimbus-psp/psp-router/internal/model"
)

// RemotePredictor calls out to a remote model-serving endpoint over HTTP.
// Per spec.md §9, the "LLM-as-brain" and "local ML models" variants both
// reduce to the same Predictor contract: the Router never special-cases
// this variant versus LocalEnsemble. Structurally ready for a real model
// service; the wire format here is a minimal JSON request/response.
type RemotePredictor struct {
	client  *http.Client
	baseURL string
	version string
	timeout time.Duration
	ready   atomic.Bool
}

// NewRemotePredictor creates a RemotePredictor targeting baseURL. Ready
// state is set explicitly via SetReady, since readiness here reflects
// whatever health-check protocol the remote service exposes, which is
// outside this engine's scope.
func NewRemotePredictor(client *http.Client, baseURL, version string, timeout time.Duration) *RemotePredictor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemotePredictor{client: client, baseURL: baseURL, version: version, timeout: timeout}
}

// SetReady flips the liveness probe; a deployment wires this to its own
// remote-service health check.
func (r *RemotePredictor) SetReady(ready bool) { r.ready.Store(ready) }

func (r *RemotePredictor) IsReady() bool { return r.ready.Load() }

func (r *RemotePredictor) Status() model.ModelStatus {
	state := model.ModelFailed
	if r.ready.Load() {
		state = model.ModelReady
	}
	return model.ModelStatus{State: state, ModelVersion: r.version}
}

type remotePredictRequest struct {
	Transaction model.Transaction `json:"transaction"`
	Candidate   model.Candidate   `json:"candidate"`
}

type remotePredictResponse struct {
	PredictedAuthProbability float64      `json:"predicted_auth_probability"`
	PredictedProcessingTime  float64      `json:"predicted_processing_time_ms"`
	PredictedHealth          model.Health `json:"predicted_health"`
}

// Predict posts the transaction/candidate pair and decodes a single
// structured response. Any transport error, non-200 status, or deadline
// expiry fails the whole call with ErrUnavailable, never a partial
// prediction — there is no tool-calling loop here by design (spec.md §9):
// one feature vector, one call.
func (r *RemotePredictor) Predict(ctx context.Context, txn model.Transaction, candidate model.Candidate) (model.Prediction, error) {
	if !r.ready.Load() {
		return model.Prediction{}, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(remotePredictRequest{Transaction: txn, Candidate: candidate})
	if err != nil {
		return model.Prediction{}, ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return model.Prediction{}, ErrUnavailable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Prediction{}, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Prediction{}, ErrUnavailable
	}

	var out remotePredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Prediction{}, ErrUnavailable
	}

	return model.Prediction{
		PredictedAuthProbability: out.PredictedAuthProbability,
		PredictedProcessingTime:  out.PredictedProcessingTime,
		PredictedHealth:          out.PredictedHealth,
		ModelVersion:             r.version,
		Timestamp:                time.Now(),
	}, nil
}
