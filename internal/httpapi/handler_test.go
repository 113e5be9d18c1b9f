package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/model"
	"github.com/nimbus-psp/psp-router/internal/predictor"
	"github.com/nimbus-psp/psp-router/internal/router"
)

type fakeHistory struct {
	rows map[[2]int][]candidatestore.HistoricalRow
}

func (f *fakeHistory) QuerySegment(ctx context.Context, currencyID, paymentMethodID int, since time.Time) ([]candidatestore.HistoricalRow, error) {
	return f.rows[[2]int{currencyID, paymentMethodID}], nil
}

type fakeIngestor struct {
	submitted []model.Feedback
}

func (f *fakeIngestor) Submit(fb model.Feedback) {
	f.submitted = append(f.submitted, fb)
}

func newTestHandler(t *testing.T) (*Handler, *fakeIngestor) {
	t.Helper()
	hist := &fakeHistory{rows: make(map[[2]int][]candidatestore.HistoricalRow)}
	var rows []candidatestore.HistoricalRow
	for i := 0; i < 10; i++ {
		rows = append(rows, candidatestore.HistoricalRow{PSPName: "alpha-pay", StatusCode: candidatestore.StatusApproved, ThreeDS: true})
	}
	hist.rows[[2]int{1, model.CardPaymentMethodID}] = rows

	loader := config.NewLoader()
	store := candidatestore.New(hist, loader)
	le := predictor.NewLocalEnsemble("v1", 50*time.Millisecond)
	require.NoError(t, le.Load(context.Background()))
	r := router.New(store, le, loader)
	ing := &fakeIngestor{}

	return New(r, store, le, ing), ing
}

func TestHandler_Decide_Success(t *testing.T) {
	h, _ := newTestHandler(t)

	txn := model.Transaction{CurrencyID: 1, PaymentMethodID: model.CardPaymentMethodID, Amount: 50}
	body, _ := json.Marshal(txn)
	req := httptest.NewRequest(http.MethodPost, "/decisions", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decision model.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "alpha-pay", decision.Candidate)
}

func TestHandler_Decide_InvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/decisions", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Decide_MapsNoEligibleCandidateTo422(t *testing.T) {
	h, _ := newTestHandler(t)

	txn := model.Transaction{CurrencyID: 99, PaymentMethodID: model.CardPaymentMethodID, Amount: 50}
	body, _ := json.Marshal(txn)
	req := httptest.NewRequest(http.MethodPost, "/decisions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandler_Feedback_SubmitsToIngestor(t *testing.T) {
	h, ing := newTestHandler(t)

	fb := model.Feedback{DecisionID: "dec-1", PSPName: "alpha-pay", Authorized: true}
	body, _ := json.Marshal(fb)
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ing.submitted, 1)
	assert.Equal(t, "dec-1", ing.submitted[0].DecisionID)
}

func TestHandler_Feedback_RejectsMissingFields(t *testing.T) {
	h, _ := newTestHandler(t)

	body, _ := json.Marshal(model.Feedback{})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListCandidates(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/candidates", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ModelStatus(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/model/status", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status model.ModelStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, model.ModelReady, status.State)
}

func TestHandler_SimulatePredictorOutage_TogglesFailure(t *testing.T) {
	h, _ := newTestHandler(t)

	body, _ := json.Marshal(map[string]bool{"down": true})
	req := httptest.NewRequest(http.MethodPost, "/simulate/predictor-outage", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	txn := model.Transaction{CurrencyID: 1, PaymentMethodID: model.CardPaymentMethodID, Amount: 50}
	decBody, _ := json.Marshal(txn)
	decReq := httptest.NewRequest(http.MethodPost, "/decisions", bytes.NewReader(decBody))
	decRec := httptest.NewRecorder()
	h.Routes().ServeHTTP(decRec, decReq)

	require.Equal(t, http.StatusOK, decRec.Code)
	var decision model.Decision
	require.NoError(t, json.Unmarshal(decRec.Body.Bytes(), &decision))
	assert.Contains(t, decision.FeaturesUsed, "fallback=true")
}

func TestHandler_SimulateBatch_ReturnsSummary(t *testing.T) {
	h, _ := newTestHandler(t)

	body, _ := json.Marshal(map[string]int{"count": 5, "currency_id": 1, "payment_method_id": model.CardPaymentMethodID})
	req := httptest.NewRequest(http.MethodPost, "/simulate/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, float64(5), result["total"])
}

func TestHandler_SimulateBatch_RejectsOutOfRangeCount(t *testing.T) {
	h, _ := newTestHandler(t)

	body, _ := json.Marshal(map[string]int{"count": 0})
	req := httptest.NewRequest(http.MethodPost, "/simulate/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
