// Package candidatestore implements the Candidate Store: the authoritative
// in-memory PSP candidate set, refreshed from the historical outcome store
// and continuously updated by feedback. See spec.md §4.1.
package candidatestore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/errs"
	"github.com/nimbus-psp/psp-router/internal/model"
	"github.com/redis/go-redis/v9"
)

// Retrainer is the external model-training pipeline collaborator (spec.md
// §1 Out of scope). The Candidate Store only triggers it; it never writes
// Candidate state.
type Retrainer interface {
	Retrain(ctx context.Context) error
}

// noopRetrainer logs and does nothing, standing in for a real pipeline the
// same way the teacher's MockProcessor stands in for a real PSP.
type noopRetrainer struct{}

func (noopRetrainer) Retrain(ctx context.Context) error {
	slog.Info("retrain_noop_triggered")
	return nil
}

// candidateEntry is one psp's mutable state, guarded by its own mutex so
// writers serialize per key while readers look the entry up under RLock of
// the outer map and then copy a snapshot under the entry's mutex — the
// reader/writer discipline spec.md §5 requires.
type candidateEntry struct {
	mu             sync.Mutex
	data           model.Candidate
	windowOutcomes []timedOutcome
	recentOutcomes []timedOutcome
	dedup          *dedupRing
}

type timedOutcome struct {
	approved bool
	at       time.Time
}

// snapshot copies out a Candidate value under the entry's own lock, so
// concurrent readers never observe a torn struct.
func (e *candidateEntry) snapshot() model.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

// Store is the Candidate Store. The candidates map's structural changes
// (insert of a new psp) are guarded by mu; per-psp field updates are
// guarded by the entry's own mutex, giving many concurrent readers and
// serialized writers per key.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]*candidateEntry

	history HistoricalOutcomeStore
	weights *config.Loader
	cache   segmentCache
	sf      singleflight.Group

	retrainer            Retrainer
	lastRetrain          atomic.Int64 // unix nanos; 0 means never
	feedbackSinceRetrain atomic.Int64

	onEvent func(event string, fields ...any) // metrics/telemetry hook, optional
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithRetrainer overrides the default no-op Retrainer.
func WithRetrainer(r Retrainer) Option {
	return func(s *Store) { s.retrainer = r }
}

// WithRedisCache backs the segment cache with a shared Redis instance
// instead of the default in-process map.
func WithRedisCache(client *redis.Client) Option {
	return func(s *Store) { s.cache = newRedisSegmentCache(client) }
}

// New builds a Store around the given historical outcome store and
// weights loader.
func New(history HistoricalOutcomeStore, weights *config.Loader, opts ...Option) *Store {
	s := &Store{
		candidates: make(map[string]*candidateEntry),
		history:    history,
		weights:    weights,
		cache:      newLocalSegmentCache(),
		retrainer:  noopRetrainer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent installs a hook invoked whenever a retrain cycle completes — the
// seam internal/telemetry's Prometheus registry attaches to, mirroring
// router.Router.OnEvent.
func (s *Store) OnEvent(fn func(event string, fields ...any)) {
	s.onEvent = fn
}

func (s *Store) emit(event string, fields ...any) {
	if s.onEvent != nil {
		s.onEvent(event, fields...)
	}
}

// entryFor returns the candidateEntry for psp, creating one if absent.
func (s *Store) entryFor(psp string) *candidateEntry {
	s.mu.RLock()
	e, ok := s.candidates[psp]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.candidates[psp]; ok {
		return e
	}
	e = &candidateEntry{
		data:  model.Candidate{PSPName: psp, Supported: true, Health: model.HealthGreen},
		dedup: newDedupRing(s.weights.Current().DedupRingCapacity),
	}
	s.candidates[psp] = e
	return e
}

// GetAllCandidates returns a snapshot of every tracked candidate, for
// observability (spec.md §4.1).
func (s *Store) GetAllCandidates() []model.Candidate {
	s.mu.RLock()
	entries := make([]*candidateEntry, 0, len(s.candidates))
	for _, e := range s.candidates {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PSPName < out[j].PSPName })
	return out
}

// GetCandidates returns the ordered, segment-filtered candidate set for a
// transaction, per the fixed algorithm in spec.md §4.1.
func (s *Store) GetCandidates(ctx context.Context, txn model.Transaction) ([]model.Candidate, error) {
	w := s.weights.Current()
	view, err := s.segmentView(ctx, txn.CurrencyID, txn.PaymentMethodID, w)
	if err != nil {
		return nil, errs.Wrap(errs.CandidateUnavailable, "segment refresh failed", err)
	}

	type joined struct {
		candidate model.Candidate
		metrics   segmentMetrics
	}
	var joinedRows []joined

	for psp, metrics := range view {
		s.mu.RLock()
		e, ok := s.candidates[psp]
		s.mu.RUnlock()

		var c model.Candidate
		if ok {
			c = e.snapshot()
		} else {
			c = model.Candidate{PSPName: psp, Supported: true, Health: model.HealthGreen}
		}
		joinedRows = append(joinedRows, joined{candidate: c, metrics: metrics})
	}

	eligible := make([]model.Candidate, 0, len(joinedRows))
	for _, jr := range joinedRows {
		if jr.metrics.Count < w.MinVolumeThreshold {
			continue
		}
		if !jr.candidate.Supported {
			continue
		}
		c := jr.candidate
		c.Supports3DS = jr.metrics.Supports3DS
		c.SupportsTokenized = jr.metrics.SupportsTokenized
		c.MeanFeeBps = jr.metrics.MeanFeeBps
		c.FixedFee = jr.metrics.FixedFee
		// SegmentAuthRate is scoped to this segment's historical rows and
		// exists only to order candidates within this call. It must never
		// overwrite RecentAuthRate, which is the feedback-driven rolling
		// rate (ApplyFeedback, w.RecentWindowDays) the Predictor and the
		// deterministic fallback path both depend on.
		c.SegmentAuthRate = jr.metrics.authRate()
		eligible = append(eligible, c)
	}

	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i].SegmentAuthRate, eligible[j].SegmentAuthRate
		if ri != rj {
			return ri > rj
		}
		return eligible[i].MeanFeeBps < eligible[j].MeanFeeBps
	})

	return eligible, nil
}

// segmentView fetches (or serves cached) per-segment candidate metrics,
// coalescing concurrent misses for the same segment key via single-flight
// to avoid a thundering herd against the historical outcome store.
func (s *Store) segmentView(ctx context.Context, currencyID, paymentMethodID int, w *config.Weights) (segmentView, error) {
	key := segmentKey{CurrencyID: currencyID, PaymentMethodID: paymentMethodID}

	if view, ok := s.cache.get(ctx, key); ok {
		return view, nil
	}

	v, err, _ := s.sf.Do(key.String(), func() (interface{}, error) {
		if view, ok := s.cache.get(ctx, key); ok {
			return view, nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, w.SegmentFetchTimeout)
		defer cancel()

		since := time.Now().AddDate(0, 0, -w.WindowDays)
		rows, err := s.history.QuerySegment(fetchCtx, currencyID, paymentMethodID, since)
		if err != nil {
			return nil, err
		}

		view := aggregateSegment(rows, w.SuccessStatusCodes)
		s.cache.set(ctx, key, view, w.SegmentCacheTTL)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(segmentView), nil
}

// aggregateSegment folds a segment's historical rows into per-psp metrics.
// A row counts as an authorized outcome when its StatusCode is a member of
// successCodes (config.Weights.SuccessStatusCodes), per spec.md §6's
// "status code N, or configured equivalents" success rule. Capability flags
// are a presence projection: any row from a psp carrying a 3DS/tokenized
// indicator marks that capability true, never absence.
func aggregateSegment(rows []HistoricalRow, successCodes []int) segmentView {
	success := make(map[int]bool, len(successCodes))
	for _, code := range successCodes {
		success[code] = true
	}

	view := make(segmentView)
	feeTotals := make(map[string]float64)
	fixedTotals := make(map[string]float64)

	for _, r := range rows {
		m := view[r.PSPName]
		m.Count++
		if success[r.StatusCode] {
			m.Successes++
		}
		if r.ThreeDS {
			m.Supports3DS = true
		}
		if r.Tokenized {
			m.SupportsTokenized = true
		}
		feeTotals[r.PSPName] += r.FeeBps
		fixedTotals[r.PSPName] += r.FixedFee
		view[r.PSPName] = m
	}

	for psp, m := range view {
		if m.Count > 0 {
			m.MeanFeeBps = feeTotals[psp] / float64(m.Count)
			m.FixedFee = fixedTotals[psp] / float64(m.Count)
		}
		view[psp] = m
	}
	return view
}

// ApplyFeedback applies a single observed outcome, idempotent on decision
// id, per the algorithm in spec.md §4.1.
func (s *Store) ApplyFeedback(fb model.Feedback) {
	e := s.entryFor(fb.PSPName)
	w := s.weights.Current()

	e.mu.Lock()
	if e.dedup.Contains(fb.DecisionID) {
		e.mu.Unlock()
		return
	}

	e.data.TotalCount++
	if fb.Authorized {
		e.data.TotalSuccesses++
	}

	const alpha = 0.1
	if e.data.MeanProcessingTime == 0 {
		e.data.MeanProcessingTime = fb.ProcessingTime
	} else {
		e.data.MeanProcessingTime = alpha*fb.ProcessingTime + (1-alpha)*e.data.MeanProcessingTime
	}

	now := fb.ProcessedAt
	if now.IsZero() {
		now = time.Now()
	}
	outcome := timedOutcome{approved: fb.Authorized, at: now}
	e.windowOutcomes = pruneAndAppend(e.windowOutcomes, outcome, now.AddDate(0, 0, -w.WindowDays))
	e.recentOutcomes = pruneAndAppend(e.recentOutcomes, outcome, now.AddDate(0, 0, -w.RecentWindowDays))

	e.data.WindowAuthRate = authRateOf(e.windowOutcomes)
	e.data.RecentAuthRate = authRateOf(e.recentOutcomes)
	e.data.Health = classifyHealth(e.data.RecentAuthRate, w)
	e.data.LastUpdated = now
	e.dedup.Add(fb.DecisionID)
	e.mu.Unlock()

	s.feedbackSinceRetrain.Add(1)
}

func pruneAndAppend(window []timedOutcome, next timedOutcome, cutoff time.Time) []timedOutcome {
	window = append(window, next)
	kept := window[:0]
	for _, o := range window {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	return kept
}

func authRateOf(window []timedOutcome) float64 {
	if len(window) == 0 {
		return 0
	}
	approved := 0
	for _, o := range window {
		if o.approved {
			approved++
		}
	}
	return float64(approved) / float64(len(window))
}

// classifyHealth is the deterministic projection of recent auth rate onto
// the three-band classification, per spec.md §3 invariants: a rate
// exactly at a cutoff maps to the higher band.
func classifyHealth(recentAuthRate float64, w *config.Weights) model.Health {
	switch {
	case recentAuthRate >= w.HealthGreenCutoff:
		return model.HealthGreen
	case recentAuthRate >= w.HealthYellowCutoff:
		return model.HealthYellow
	default:
		return model.HealthRed
	}
}

// ShouldRetrain reports whether an external scheduler should invoke
// Retrain, per the three-condition trigger in spec.md §4.1.
func (s *Store) ShouldRetrain() bool {
	w := s.weights.Current()
	last := s.lastRetrain.Load()
	if last == 0 {
		return true
	}
	if time.Since(time.Unix(0, last)) > w.RetrainInterval {
		return true
	}
	return s.feedbackSinceRetrain.Load() > int64(w.RetrainFeedbackCount)
}

// Retrain invokes the configured Retrainer and resets the trigger state.
func (s *Store) Retrain(ctx context.Context) error {
	if err := s.retrainer.Retrain(ctx); err != nil {
		return errs.Wrap(errs.Internal, "retrain failed", err)
	}
	s.lastRetrain.Store(time.Now().UnixNano())
	s.feedbackSinceRetrain.Store(0)
	s.emit("retrain_triggered")
	return nil
}
