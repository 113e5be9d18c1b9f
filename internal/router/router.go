// Package router implements the Router: orchestrates guardrails →
// prediction → scoring → decision shaping, and enforces failure policy.
// See spec.md §4.4.
//
// Grounded on the teacher's internal/orchestrator/orchestrator.go
// (ProcessPayment's filter → sort → attempt shape, generalized here to
// filter → concurrent-predict → score → decide).
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/errs"
	"github.com/nimbus-psp/psp-router/internal/model"
	"github.com/nimbus-psp/psp-router/internal/predictor"
	"github.com/nimbus-psp/psp-router/internal/scorer"
)

// Router ties the Candidate Store, Predictor, and Scorer together. It
// holds no mutable per-request state: concurrent Decide calls do not
// interact, per spec.md §5.
type Router struct {
	store     *candidatestore.Store
	predict   predictor.Predictor
	weights   *config.Loader
	onOutcome func(event string, fields ...any) // metrics/telemetry hook, optional
}

// New builds a Router around its three collaborators.
func New(store *candidatestore.Store, pred predictor.Predictor, weights *config.Loader) *Router {
	return &Router{store: store, predict: pred, weights: weights}
}

// OnEvent installs a hook invoked for guardrail rejections, fallback
// usage, and completed decisions — the seam internal/telemetry's Prometheus
// registry attaches to.
func (r *Router) OnEvent(fn func(event string, fields ...any)) {
	r.onOutcome = fn
}

func (r *Router) emit(event string, fields ...any) {
	if r.onOutcome != nil {
		r.onOutcome(event, fields...)
	}
}

// Decide routes a single transaction to the best PSP candidate, per
// spec.md §4.4. It always returns a Decision unless no candidate survives
// guardrails (NoEligibleCandidate), the Candidate Store's segment read
// fails (CandidateUnavailable), the caller cancels (Cancelled /
// DeadlineExceeded), or an invalid transaction was passed in
// (InvalidArgument). Predictor failure is never surfaced: it is recovered
// locally by the Scorer's deterministic fallback.
func (r *Router) Decide(ctx context.Context, txn model.Transaction) (model.Decision, error) {
	if err := validate(txn); err != nil {
		return model.Decision{}, err
	}

	start := time.Now()
	w := r.weights.Current()

	candidates, err := r.store.GetCandidates(ctx, txn)
	if err != nil {
		return model.Decision{}, err
	}

	survivors, guardrail := applyGuardrails(candidates, txn)
	if len(survivors) == 0 {
		slog.Warn("no_eligible_candidate", "guardrail", guardrail, "candidate_count", len(candidates))
		r.emit("guardrail_emptied_candidates", "guardrail", guardrail)
		return model.Decision{}, errs.New(errs.NoEligibleCandidate, fmt.Sprintf("guardrail %q removed every candidate", guardrail))
	}

	routingCtx, cancel := context.WithTimeout(ctx, w.RoutingDeadline)
	defer cancel()

	predictions := r.predictAll(routingCtx, txn, survivors)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return model.Decision{}, errs.Wrap(errs.Cancelled, "caller cancelled", ctx.Err())
		}
		return model.Decision{}, errs.Wrap(errs.DeadlineExceeded, "caller deadline exceeded", ctx.Err())
	}

	scored := make([]scorer.Scored, len(survivors))
	for i, c := range survivors {
		pred := predictions[i]
		if pred == nil {
			r.emit("predictor_fallback", "psp", c.PSPName)
		}
		scored[i] = scorer.Score(txn, c, pred, w)
	}

	winner, alternates := scorer.Select(scored, txn.Amount)

	decision := model.Decision{
		SchemaVersion: model.SchemaVersion,
		DecisionID:    uuid.NewString(),
		Candidate:     winner.Candidate.PSPName,
		Alternates:    alternateNames(alternates),
		Guardrail:     guardrail,
		Constraints: model.Constraints{
			MustUse3DS:    txn.SCARequired && txn.IsCardPayment(),
			RetryWindowMs: w.RetryWindowMs,
			MaxRetries:    w.MaxRetries,
		},
		FeaturesUsed: scorer.FeaturesUsed(txn, winner),
	}
	decision.Reasoning = buildReasoning(txn, winner)

	slog.Info("decision_made",
		"decision_id", decision.DecisionID,
		"candidate", decision.Candidate,
		"guardrail", string(guardrail),
		"fallback", winner.UsedFallback,
	)
	r.emit("decision_made", "guardrail", string(guardrail), "latency_ms", float64(time.Since(start))/float64(time.Millisecond))

	return decision, nil
}

// predictAll fans the Predict call out across every surviving candidate,
// bounded by the aggregate routing deadline carried on ctx. A failed or
// timed-out call yields a nil entry — never an aborted Decide — which the
// Scorer treats as the deterministic fallback for that one candidate.
func (r *Router) predictAll(ctx context.Context, txn model.Transaction, candidates []model.Candidate) []*model.Prediction {
	predictions := make([]*model.Prediction, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			pred, err := r.predict.Predict(gctx, txn, c)
			if err != nil {
				return nil
			}
			predictions[i] = &pred
			return nil
		})
	}
	_ = g.Wait()

	return predictions
}

// applyGuardrails drops candidates in the fixed order of spec.md §4.4,
// returning the survivors and the tag of the first step that removed any
// candidate (GuardrailNone if every candidate survived all steps). When a
// step empties the set, the empty slice is returned with that step's tag.
func applyGuardrails(candidates []model.Candidate, txn model.Transaction) ([]model.Candidate, model.Guardrail) {
	step := func(in []model.Candidate, keep func(model.Candidate) bool) []model.Candidate {
		out := make([]model.Candidate, 0, len(in))
		for _, c := range in {
			if keep(c) {
				out = append(out, c)
			}
		}
		return out
	}

	cur := candidates
	tag := model.GuardrailNone
	narrow := func(next []model.Candidate, g model.Guardrail) {
		if len(next) < len(cur) && tag == model.GuardrailNone {
			tag = g
		}
		cur = next
	}

	cur2 := step(cur, func(c model.Candidate) bool { return c.Supported })
	if len(cur2) == 0 {
		return cur2, model.GuardrailCapability
	}
	narrow(cur2, model.GuardrailCapability)

	cur2 = step(cur, func(c model.Candidate) bool { return c.Health != model.HealthRed })
	if len(cur2) == 0 {
		return cur2, model.GuardrailHealth
	}
	narrow(cur2, model.GuardrailHealth)

	if txn.SCARequired && txn.IsCardPayment() {
		cur2 = step(cur, func(c model.Candidate) bool { return c.Supports3DS })
		if len(cur2) == 0 {
			return cur2, model.GuardrailCompliance
		}
		narrow(cur2, model.GuardrailCompliance)
	}

	return cur, tag
}

func alternateNames(alternates []scorer.Scored) []string {
	names := make([]string, 0, len(alternates))
	for _, a := range alternates {
		names = append(names, a.Candidate.PSPName)
	}
	return names
}

// buildReasoning produces the short human-readable summary spec.md §4.4
// requires, explicitly stating "deterministic fallback" whenever the
// fallback path produced the winner.
func buildReasoning(txn model.Transaction, winner scorer.Scored) string {
	if winner.UsedFallback {
		return fmt.Sprintf("deterministic fallback: chosen for highest rolling auth rate (%.2f) among surviving candidates", winner.Candidate.WindowAuthRate)
	}
	if txn.SCARequired && txn.IsCardPayment() {
		return fmt.Sprintf("chosen for highest predicted auth probability (%.2f) given 3DS requirement", winner.Prediction.PredictedAuthProbability)
	}
	return fmt.Sprintf("chosen for highest predicted auth probability (%.2f) at lowest effective cost", winner.Prediction.PredictedAuthProbability)
}

// validate enforces the Decide boundary contract of spec.md §6.
func validate(txn model.Transaction) error {
	if txn.Amount <= 0 {
		return errs.New(errs.InvalidArgument, "amount must be greater than 0")
	}
	if txn.CurrencyID <= 0 {
		return errs.New(errs.InvalidArgument, "currency id must be greater than 0")
	}
	if txn.PaymentMethodID <= 0 {
		return errs.New(errs.InvalidArgument, "payment method id must be greater than 0")
	}
	if txn.RiskScore < 0 || txn.RiskScore > 100 {
		return errs.New(errs.InvalidArgument, "risk score must be within [0,100]")
	}
	return nil
}
