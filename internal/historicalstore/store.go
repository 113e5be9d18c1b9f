// Package historicalstore provides a deterministic, in-memory reference
// implementation of the Candidate Store's read-only collaborator. The
// real historical outcome store is an external system, out of scope for
// this engine (spec.md §1); this package exists only to exercise the
// Candidate Store end-to-end, the same way the teacher's
// internal/processor.MockProcessor exists only to exercise its
// Orchestrator without a real PSP integration.
package historicalstore

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
)

// RowSeed configures the synthetic outcomes generated for one psp within
// one segment, mirroring the teacher's processor.MockConfig /
// OutcomeDistribution shape.
type RowSeed struct {
	PSPName     string
	RowCount    int
	ApprovalRate float64
	MeanFeeBps  float64
	FixedFee    float64
	Supports3DS bool
	SupportsTokenized bool
}

// Store is an in-memory, append-only historical outcome store keyed by
// segment. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[segmentKey][]candidatestore.HistoricalRow
	rng  *rand.Rand
}

type segmentKey struct {
	currencyID      int
	paymentMethodID int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rows: make(map[segmentKey][]candidatestore.HistoricalRow),
		rng:  rand.New(rand.NewSource(1)),
	}
}

// Seed deterministically populates a segment with rows generated from the
// given seeds, with ages drawn uniformly at random (from the store's
// fixed-seed source) over the last 30 days.
func (s *Store) Seed(currencyID, paymentMethodID int, seeds []RowSeed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := segmentKey{currencyID: currencyID, paymentMethodID: paymentMethodID}
	now := time.Now()

	for _, seed := range seeds {
		for i := 0; i < seed.RowCount; i++ {
			age := time.Duration(s.rng.Int63n(int64(30 * 24 * time.Hour)))
			statusCode := candidatestore.StatusDeclined
			if s.rng.Float64() < seed.ApprovalRate {
				statusCode = candidatestore.StatusApproved
			}
			s.rows[key] = append(s.rows[key], candidatestore.HistoricalRow{
				PSPName:    seed.PSPName,
				StatusCode: statusCode,
				FeeBps:     seed.MeanFeeBps,
				FixedFee:   seed.FixedFee,
				ThreeDS:    seed.Supports3DS,
				Tokenized:  seed.SupportsTokenized,
				CreatedAt:  now.Add(-age),
			})
		}
	}
}

// Append records a single historical row, for tests that want precise
// control over an individual outcome.
func (s *Store) Append(currencyID, paymentMethodID int, row candidatestore.HistoricalRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := segmentKey{currencyID: currencyID, paymentMethodID: paymentMethodID}
	s.rows[key] = append(s.rows[key], row)
}

// QuerySegment implements candidatestore.HistoricalOutcomeStore.
func (s *Store) QuerySegment(ctx context.Context, currencyID, paymentMethodID int, since time.Time) ([]candidatestore.HistoricalRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := segmentKey{currencyID: currencyID, paymentMethodID: paymentMethodID}
	all := s.rows[key]
	out := make([]candidatestore.HistoricalRow, 0, len(all))
	for _, r := range all {
		if r.CreatedAt.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

// FailingStore always fails QuerySegment, used to test
// errs.CandidateUnavailable propagation on a cold segment miss.
type FailingStore struct {
	Err error
}

func (f FailingStore) QuerySegment(ctx context.Context, currencyID, paymentMethodID int, since time.Time) ([]candidatestore.HistoricalRow, error) {
	return nil, f.Err
}
