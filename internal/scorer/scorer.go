// Package scorer implements the Scorer: combines Predictor outputs (or a
// deterministic fallback) with fee structure and product-configured
// weights into one utility score per candidate, then picks a winner with
// fixed tie-breaks. See spec.md §4.3.
//
// Grounded on other_examples' pulseberry routing.go (score-then-sort
// selectByHealthScore shape) and the clai suggest-scorer.go weighted
// multi-factor pattern.
package scorer

import (
	"fmt"
	"sort"

	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/model"
)

// Scored is one candidate's score plus the inputs that produced it, kept
// around so the Router can build features_used/reasoning without
// recomputing.
type Scored struct {
	Candidate    model.Candidate
	Prediction   *model.Prediction // nil when the fallback path was used
	Score        float64
	UsedFallback bool
}

// Score computes the utility for one candidate, per the formula in
// spec.md §4.3. pred is nil when the Predictor failed for this candidate
// (or globally), triggering the deterministic fallback: p_auth becomes
// the candidate's rolling authRate, and the health penalty comes from
// candidate state rather than the prediction. The score has no
// processing-time term.
func Score(txn model.Transaction, candidate model.Candidate, pred *model.Prediction, w *config.Weights) Scored {
	usedFallback := pred == nil

	pAuth := candidate.WindowAuthRate
	if candidate.WindowAuthRate == 0 {
		pAuth = candidate.AuthRate()
	}
	health := candidate.Health
	if pred != nil {
		pAuth = pred.PredictedAuthProbability
		health = pred.PredictedHealth
	}

	score := w.AuthWeight * pAuth
	score -= w.FeeBpsWeight * (candidate.MeanFeeBps / 10000)
	score -= w.FixedFeeWeight * (candidate.FixedFee / maxFloat(txn.Amount, 1))

	if txn.SCARequired && candidate.Supports3DS {
		score += w.ThreeDSBonus
	}

	score -= w.RiskPenaltyPerPoint * txn.RiskScore

	if health == model.HealthYellow {
		score -= w.YellowHealthPenalty
	}

	score += w.BusinessBiasWeight * w.BusinessBias[candidate.PSPName]

	return Scored{Candidate: candidate, Prediction: pred, Score: score, UsedFallback: usedFallback}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Select sorts scored candidates by the fixed tie-break order and
// returns the winner plus up to two alternates preserving score order.
// Select never fails on a non-empty input, per spec.md §4.4.
func Select(scored []Scored, amount float64) (winner Scored, alternates []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Candidate.WindowAuthRate != b.Candidate.WindowAuthRate {
			return a.Candidate.WindowAuthRate > b.Candidate.WindowAuthRate
		}
		feeA, feeB := a.Candidate.TotalFee(amount), b.Candidate.TotalFee(amount)
		if feeA != feeB {
			return feeA < feeB
		}
		return a.Candidate.PSPName < b.Candidate.PSPName
	})

	winner = scored[0]
	n := len(scored) - 1
	if n > 2 {
		n = 2
	}
	alternates = append(alternates, scored[1:1+n]...)
	return winner, alternates
}

// FeaturesUsed builds the fixed-vocabulary list of feature tags that
// materially influenced the winning score, per spec.md §4.4.
func FeaturesUsed(txn model.Transaction, winner Scored) []string {
	pAuth := winner.Candidate.WindowAuthRate
	if winner.Prediction != nil {
		pAuth = winner.Prediction.PredictedAuthProbability
	}

	features := []string{
		fmt.Sprintf("auth_rate=%.2f", pAuth),
		fmt.Sprintf("fee_bps=%.0f", winner.Candidate.MeanFeeBps),
	}
	if txn.SCARequired {
		features = append(features, "sca_required=true")
	}
	if winner.Candidate.Supports3DS {
		features = append(features, "supports_3ds=true")
	}
	if winner.Candidate.Health == model.HealthYellow {
		features = append(features, "health=yellow")
	}
	if txn.RiskScore > 0 {
		features = append(features, fmt.Sprintf("risk_score=%.0f", txn.RiskScore))
	}
	if winner.UsedFallback {
		features = append(features, "fallback=true")
	}
	return features
}
