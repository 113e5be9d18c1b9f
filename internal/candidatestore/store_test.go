package candidatestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/model"
)

// fakeHistory is an in-package stand-in for the external historical outcome
// store, letting these tests control segment rows directly.
type fakeHistory struct {
	rows map[[2]int][]HistoricalRow
	err  error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{rows: make(map[[2]int][]HistoricalRow)}
}

func (f *fakeHistory) seed(currencyID, paymentMethodID int, rows ...HistoricalRow) {
	f.rows[[2]int{currencyID, paymentMethodID}] = rows
}

func (f *fakeHistory) QuerySegment(ctx context.Context, currencyID, paymentMethodID int, since time.Time) ([]HistoricalRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[[2]int{currencyID, paymentMethodID}], nil
}

func testTxn() model.Transaction {
	return model.Transaction{CurrencyID: 1, PaymentMethodID: model.CardPaymentMethodID, Amount: 100}
}

func TestStore_GetCandidates_FiltersBelowMinVolume(t *testing.T) {
	hist := newFakeHistory()
	hist.seed(1, model.CardPaymentMethodID,
		HistoricalRow{PSPName: "alpha-pay", StatusCode: StatusApproved},
	)
	loader := config.NewLoader()
	store := New(hist, loader)

	candidates, err := store.GetCandidates(context.Background(), testTxn())
	require.NoError(t, err)
	assert.Empty(t, candidates, "single row is below the default min-volume threshold")
}

func TestStore_GetCandidates_ReturnsEligibleOrderedBySegmentAuthRate(t *testing.T) {
	hist := newFakeHistory()
	var rows []HistoricalRow
	for i := 0; i < 10; i++ {
		rows = append(rows, HistoricalRow{PSPName: "alpha-pay", StatusCode: statusFor(i < 9), FeeBps: 150})
		rows = append(rows, HistoricalRow{PSPName: "beta-processing", StatusCode: statusFor(i < 7), FeeBps: 100})
	}
	hist.seed(1, model.CardPaymentMethodID, rows...)

	loader := config.NewLoader()
	store := New(hist, loader)

	candidates, err := store.GetCandidates(context.Background(), testTxn())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "alpha-pay", candidates[0].PSPName, "higher segment auth rate sorts first")
	assert.Equal(t, "beta-processing", candidates[1].PSPName)
	assert.InDelta(t, 0.9, candidates[0].SegmentAuthRate, 0.001)
	assert.Zero(t, candidates[0].RecentAuthRate, "segment ordering must never leak into the feedback-driven auth rate")
}

func statusFor(approved bool) int {
	if approved {
		return StatusApproved
	}
	return StatusDeclined
}

func TestStore_GetCandidates_PropagatesHistoryFailure(t *testing.T) {
	hist := newFakeHistory()
	hist.err = errors.New("segment store unreachable")
	loader := config.NewLoader()
	store := New(hist, loader)

	_, err := store.GetCandidates(context.Background(), testTxn())
	assert.Error(t, err)
}

func TestStore_GetCandidates_CachesSegmentView(t *testing.T) {
	hist := newFakeHistory()
	var rows []HistoricalRow
	for i := 0; i < 10; i++ {
		rows = append(rows, HistoricalRow{PSPName: "alpha-pay", StatusCode: StatusApproved})
	}
	hist.seed(1, model.CardPaymentMethodID, rows...)

	loader := config.NewLoader()
	store := New(hist, loader)

	_, err := store.GetCandidates(context.Background(), testTxn())
	require.NoError(t, err)

	hist.err = errors.New("store went down after first read")
	_, err = store.GetCandidates(context.Background(), testTxn())
	assert.NoError(t, err, "second call within TTL should be served from cache")
}

func TestStore_ApplyFeedback_UpdatesRollingStateAndIsIdempotent(t *testing.T) {
	hist := newFakeHistory()
	loader := config.NewLoader()
	store := New(hist, loader)

	fb := model.Feedback{DecisionID: "dec-1", PSPName: "alpha-pay", Authorized: true, ProcessingTime: 200, ProcessedAt: time.Now()}
	store.ApplyFeedback(fb)
	store.ApplyFeedback(fb) // duplicate, must be ignored

	all := store.GetAllCandidates()
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].TotalCount, "duplicate decision id must not double-count")
	assert.Equal(t, 1, all[0].TotalSuccesses)
}

func TestStore_ApplyFeedback_ClassifiesHealthFromRecentAuthRate(t *testing.T) {
	hist := newFakeHistory()
	loader := config.NewLoader()
	store := New(hist, loader)

	now := time.Now()
	for i := 0; i < 10; i++ {
		store.ApplyFeedback(model.Feedback{
			DecisionID: string(rune('a' + i)), PSPName: "beta-processing",
			Authorized: i < 3, ProcessedAt: now,
		})
	}

	all := store.GetAllCandidates()
	require.Len(t, all, 1)
	assert.Equal(t, model.HealthRed, all[0].Health, "30% recent auth rate should classify red")
}

func TestStore_ShouldRetrain_TrueBeforeFirstRetrain(t *testing.T) {
	hist := newFakeHistory()
	loader := config.NewLoader()
	store := New(hist, loader)

	assert.True(t, store.ShouldRetrain())
}

func TestStore_ShouldRetrain_FalseRightAfterRetrain(t *testing.T) {
	hist := newFakeHistory()
	loader := config.NewLoader()
	store := New(hist, loader, WithRetrainer(noopRetrainer{}))

	require.NoError(t, store.Retrain(context.Background()))
	assert.False(t, store.ShouldRetrain())
}

func TestStore_GetCandidates_HonorsConfiguredSuccessStatusCodes(t *testing.T) {
	hist := newFakeHistory()
	var rows []HistoricalRow
	// 7 and 9 are success codes under the default SuccessStatusCodes
	// ({5,7,9}), not just the StatusApproved (5) convenience constant.
	for i := 0; i < 10; i++ {
		rows = append(rows, HistoricalRow{PSPName: "alpha-pay", StatusCode: 7})
	}
	for i := 0; i < 10; i++ {
		rows = append(rows, HistoricalRow{PSPName: "beta-processing", StatusCode: 1})
	}
	hist.seed(1, model.CardPaymentMethodID, rows...)

	loader := config.NewLoader()
	store := New(hist, loader)

	candidates, err := store.GetCandidates(context.Background(), testTxn())
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "alpha-pay", candidates[0].PSPName)
	assert.InDelta(t, 1.0, candidates[0].SegmentAuthRate, 0.001, "status code 7 is a configured success code")
	assert.InDelta(t, 0.0, candidates[1].SegmentAuthRate, 0.001, "status code 1 is not a configured success code")
}

func TestStore_Retrain_EmitsRetrainTriggeredEvent(t *testing.T) {
	hist := newFakeHistory()
	loader := config.NewLoader()
	store := New(hist, loader, WithRetrainer(noopRetrainer{}))

	var events []string
	store.OnEvent(func(event string, fields ...any) { events = append(events, event) })

	require.NoError(t, store.Retrain(context.Background()))
	assert.Equal(t, []string{"retrain_triggered"}, events)
}

func TestStore_GetAllCandidates_SortedByName(t *testing.T) {
	hist := newFakeHistory()
	loader := config.NewLoader()
	store := New(hist, loader)

	store.ApplyFeedback(model.Feedback{DecisionID: "1", PSPName: "zeta", Authorized: true, ProcessedAt: time.Now()})
	store.ApplyFeedback(model.Feedback{DecisionID: "2", PSPName: "alpha-pay", Authorized: true, ProcessedAt: time.Now()})

	all := store.GetAllCandidates()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha-pay", all[0].PSPName)
	assert.Equal(t, "zeta", all[1].PSPName)
}
