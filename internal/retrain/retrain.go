// Package retrain provides the external retraining scheduler and a
// logging stand-in for the real training pipeline collaborator, which is
// out of scope for this engine (spec.md §1, §2 "Retrainer").
package retrain

import (
	"context"
	"log/slog"
	"time"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
)

// LoggingRetrainer stands in for the real model-training pipeline: it
// never writes Candidate state (spec.md §5 "Shared-resource policy"),
// only logs that a retrain was requested. A real deployment swaps this
// for a client of the actual training service behind the same
// candidatestore.Retrainer interface.
type LoggingRetrainer struct{}

func (LoggingRetrainer) Retrain(ctx context.Context) error {
	slog.Info("retrain_requested")
	return nil
}

// Scheduler polls the Candidate Store's ShouldRetrain/Retrain contract on
// an interval, playing the role of the "external scheduler" spec.md §4.1
// says may invoke them.
type Scheduler struct {
	store    *candidatestore.Store
	interval time.Duration
	stop     chan struct{}
}

// NewScheduler builds a Scheduler that checks ShouldRetrain every
// checkInterval.
func NewScheduler(store *candidatestore.Store, checkInterval time.Duration) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &Scheduler{store: store, interval: checkInterval, stop: make(chan struct{})}
}

// Run blocks, checking ShouldRetrain on each tick, until ctx is cancelled
// or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if s.store.ShouldRetrain() {
				if err := s.store.Retrain(ctx); err != nil {
					slog.Warn("retrain_failed", "error", err)
				}
			}
		}
	}
}

// Stop ends a running Scheduler's Run loop.
func (s *Scheduler) Stop() {
	close(s.stop)
}
