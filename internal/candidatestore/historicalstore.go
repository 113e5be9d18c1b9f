package candidatestore

import (
	"context"
	"time"
)

// HistoricalRow is a single outcome row as read from the historical
// outcome store, per spec.md §6's consumed rowset shape. StatusCode is the
// raw PSP response/status code; whether it counts as an authorized outcome
// is a Candidate Store policy decision (config.Weights.SuccessStatusCodes),
// not something this row decides for itself.
type HistoricalRow struct {
	PSPName    string
	StatusCode int
	FeeBps     float64
	FixedFee   float64
	ThreeDS    bool
	Tokenized  bool
	CreatedAt  time.Time
}

// StatusApproved and StatusDeclined are convenience status codes matching
// config.Weights' default SuccessStatusCodes ({5,7,9}), for callers that
// construct HistoricalRow values without a real upstream status taxonomy.
const (
	StatusApproved = 5
	StatusDeclined = 1
)

// HistoricalOutcomeStore is the read-only collaborator the Candidate Store
// queries to build segment views. It is external to this engine (spec.md
// §1 Out of scope / §6): a time-bounded segmented aggregation query with
// per-segment caching performed here, not inside the store implementation.
type HistoricalOutcomeStore interface {
	QuerySegment(ctx context.Context, currencyID, paymentMethodID int, since time.Time) ([]HistoricalRow, error)
}
