package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/model"
)

func weights() *config.Weights {
	return config.NewLoader().Current()
}

func TestScore_UsesPredictionWhenPresent(t *testing.T) {
	w := weights()
	txn := model.Transaction{Amount: 100}
	candidate := model.Candidate{PSPName: "alpha-pay", WindowAuthRate: 0.5, Health: model.HealthGreen}
	pred := &model.Prediction{PredictedAuthProbability: 0.9, PredictedHealth: model.HealthGreen}

	s := Score(txn, candidate, pred, w)

	assert.False(t, s.UsedFallback)
	assert.InDelta(t, w.AuthWeight*0.9, s.Score, 1e-9)
}

func TestScore_FallbackUsesRollingAuthRate(t *testing.T) {
	w := weights()
	txn := model.Transaction{Amount: 100}
	candidate := model.Candidate{PSPName: "beta-processing", WindowAuthRate: 0.7, Health: model.HealthGreen}

	s := Score(txn, candidate, nil, w)

	assert.True(t, s.UsedFallback)
	assert.InDelta(t, w.AuthWeight*0.7, s.Score, 1e-9)
}

func TestScore_FallbackWithNoHistoryUsesLifetimeAuthRate(t *testing.T) {
	w := weights()
	txn := model.Transaction{Amount: 100}
	candidate := model.Candidate{PSPName: "gamma-gateway", TotalCount: 10, TotalSuccesses: 8}

	s := Score(txn, candidate, nil, w)

	assert.InDelta(t, w.AuthWeight*0.8, s.Score, 1e-9)
}

func TestScore_ThreeDSBonusOnlyWhenSCARequiredAndSupported(t *testing.T) {
	w := weights()
	txn := model.Transaction{Amount: 100, SCARequired: true}

	with3DS := model.Candidate{Supports3DS: true}
	without3DS := model.Candidate{Supports3DS: false}

	sWith := Score(txn, with3DS, nil, w)
	sWithout := Score(txn, without3DS, nil, w)

	assert.InDelta(t, sWithout.Score+w.ThreeDSBonus, sWith.Score, 1e-9)
}

func TestScore_YellowHealthPenalty(t *testing.T) {
	w := weights()
	txn := model.Transaction{Amount: 100}

	green := model.Candidate{Health: model.HealthGreen}
	yellow := model.Candidate{Health: model.HealthYellow}

	sGreen := Score(txn, green, nil, w)
	sYellow := Score(txn, yellow, nil, w)

	assert.InDelta(t, sGreen.Score-w.YellowHealthPenalty, sYellow.Score, 1e-9)
}

func TestSelect_OrdersByScoreThenTieBreaks(t *testing.T) {
	scored := []Scored{
		{Candidate: model.Candidate{PSPName: "low-score"}, Score: 0.1},
		{Candidate: model.Candidate{PSPName: "high-score"}, Score: 0.9},
		{Candidate: model.Candidate{PSPName: "mid-score"}, Score: 0.5},
	}

	winner, alternates := Select(scored, 100)

	assert.Equal(t, "high-score", winner.Candidate.PSPName)
	require.Len(t, alternates, 2)
	assert.Equal(t, "mid-score", alternates[0].Candidate.PSPName)
	assert.Equal(t, "low-score", alternates[1].Candidate.PSPName)
}

func TestSelect_TieBreaksOnFeeWhenScoreAndAuthRateTie(t *testing.T) {
	scored := []Scored{
		{Candidate: model.Candidate{PSPName: "zeta", WindowAuthRate: 0.8, FixedFee: 0.50}, Score: 0.5},
		{Candidate: model.Candidate{PSPName: "alpha-pay", WindowAuthRate: 0.8, FixedFee: 0.10}, Score: 0.5},
	}

	winner, _ := Select(scored, 100)

	assert.Equal(t, "alpha-pay", winner.Candidate.PSPName, "lower fee wins when score and auth rate tie")
}

func TestSelect_AlternatesCappedAtTwo(t *testing.T) {
	scored := make([]Scored, 5)
	for i := range scored {
		scored[i] = Scored{Candidate: model.Candidate{PSPName: string(rune('a' + i))}, Score: float64(5 - i)}
	}

	_, alternates := Select(scored, 100)

	assert.Len(t, alternates, 2)
}

func TestFeaturesUsed_IncludesFallbackTag(t *testing.T) {
	winner := Scored{
		Candidate:    model.Candidate{WindowAuthRate: 0.8, MeanFeeBps: 150},
		UsedFallback: true,
	}
	features := FeaturesUsed(model.Transaction{}, winner)
	assert.Contains(t, features, "fallback=true")
}

func TestFeaturesUsed_IncludesSCATag(t *testing.T) {
	winner := Scored{Candidate: model.Candidate{Supports3DS: true}}
	features := FeaturesUsed(model.Transaction{SCARequired: true}, winner)
	assert.Contains(t, features, "sca_required=true")
	assert.Contains(t, features, "supports_3ds=true")
}
