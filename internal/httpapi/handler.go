// Package httpapi wraps the transport-agnostic engine (Router, Candidate
// Store, Predictor, feedback Ingestor) in an HTTP surface, grounded on the
// teacher's internal/handler/handler.go RegisterRoutes/writeJSON shape,
// generalized from net/http's bare ServeMux to go-chi/chi/v5.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
	"github.com/nimbus-psp/psp-router/internal/errs"
	"github.com/nimbus-psp/psp-router/internal/model"
	"github.com/nimbus-psp/psp-router/internal/predictor"
	"github.com/nimbus-psp/psp-router/internal/router"
)

// FeedbackSubmitter decouples the HTTP layer from the feedback
// Ingestor's concrete type, the same narrow-interface style the engine
// uses throughout.
type FeedbackSubmitter interface {
	Submit(fb model.Feedback)
}

// Handler holds HTTP handler dependencies.
type Handler struct {
	router    *router.Router
	store     *candidatestore.Store
	predictor predictor.Predictor
	ingestor  FeedbackSubmitter
}

// New creates a new Handler.
func New(r *router.Router, store *candidatestore.Store, pred predictor.Predictor, ingestor FeedbackSubmitter) *Handler {
	return &Handler{router: r, store: store, predictor: pred, ingestor: ingestor}
}

// Routes builds the chi router for the engine's exposed operations plus
// the simulation endpoints.
func (h *Handler) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Post("/decisions", h.Decide)
	mux.Post("/feedback", h.Feedback)
	mux.Get("/candidates", h.ListCandidates)
	mux.Get("/model/status", h.ModelStatus)
	mux.Post("/simulate/predictor-outage", h.SimulatePredictorOutage)
	mux.Post("/simulate/batch", h.SimulateBatch)
	return mux
}

// Decide handles POST /decisions.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var txn model.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	decision, err := h.router.Decide(r.Context(), txn)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// Feedback handles POST /feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var fb model.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if fb.DecisionID == "" || fb.PSPName == "" {
		writeError(w, http.StatusBadRequest, "decision_id and psp_name are required")
		return
	}
	if fb.ProcessedAt.IsZero() {
		fb.ProcessedAt = time.Now()
	}

	h.ingestor.Submit(fb)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ListCandidates handles GET /candidates.
func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": h.store.GetAllCandidates(),
	})
}

// ModelStatus handles GET /model/status.
func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.predictor.Status())
}

// degradeRequest is the request body for POST /simulate/predictor-outage,
// mirroring the teacher's degradeRequest shape for /simulate/degrade.
type degradeRequest struct {
	Down bool `json:"down"`
}

type degradable interface {
	SetFailing(bool)
}

// SimulatePredictorOutage toggles a LocalEnsemble predictor's forced
// failure mode, letting an operator exercise the fallback path the same
// way the teacher's SimulateDegrade exercises processor degradation.
func (h *Handler) SimulatePredictorOutage(w http.ResponseWriter, r *http.Request) {
	var req degradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, ok := h.predictor.(degradable)
	if !ok {
		writeError(w, http.StatusConflict, "active predictor does not support outage simulation")
		return
	}
	d.SetFailing(req.Down)
	slog.Info("predictor_outage_toggled", "down", req.Down)
	writeJSON(w, http.StatusOK, map[string]interface{}{"down": req.Down})
}

// batchRequest is the request body for POST /simulate/batch.
type batchRequest struct {
	Count           int  `json:"count"`
	CurrencyID      int  `json:"currency_id"`
	PaymentMethodID int  `json:"payment_method_id"`
	SCARequired     bool `json:"sca_required"`
}

// SimulateBatch replays Count synthetic transactions through Decide and
// summarizes outcomes, mirroring the teacher's summarizeBatch.
func (h *Handler) SimulateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Count <= 0 || req.Count > 1000 {
		writeError(w, http.StatusBadRequest, "count must be between 1 and 1000")
		return
	}
	if req.CurrencyID == 0 {
		req.CurrencyID = 1
	}
	if req.PaymentMethodID == 0 {
		req.PaymentMethodID = model.CardPaymentMethodID
	}

	decisions := make([]model.Decision, 0, req.Count)
	failures := 0
	for i := 0; i < req.Count; i++ {
		txn := model.Transaction{
			MerchantID:      "batch-merchant",
			CurrencyID:      req.CurrencyID,
			PaymentMethodID: req.PaymentMethodID,
			Amount:          5 + rand.Float64()*195,
			RiskScore:       rand.Float64() * 100,
			SCARequired:     req.SCARequired,
			RequestedAt:     time.Now(),
		}
		d, err := h.router.Decide(r.Context(), txn)
		if err != nil {
			failures++
			continue
		}
		decisions = append(decisions, d)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":     req.Count,
		"decided":   len(decisions),
		"failed":    failures,
		"decisions": decisions,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps the engine's error taxonomy onto HTTP status
// codes, per spec.md §7.
func writeEngineError(w http.ResponseWriter, err error) {
	kind, ok := errs.KindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case errs.InvalidArgument:
		status = http.StatusBadRequest
	case errs.NoEligibleCandidate:
		status = http.StatusUnprocessableEntity
	case errs.CandidateUnavailable:
		status = http.StatusServiceUnavailable
	case errs.Cancelled:
		status = 499
	case errs.DeadlineExceeded:
		status = http.StatusGatewayTimeout
	case errs.Internal:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(kind)})
}
