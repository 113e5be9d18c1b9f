package predictor

import (
	"math"
	"time"

	"github.com/nimbus-psp/psp-router/internal/model"
)

// FeatureVector is the deterministic, numeric feature set assembled per
// (transaction, candidate) call, per spec.md §4.2. Every value is derived
// from the transaction and candidate state passed in; no I/O happens
// inside assembly.
type FeatureVector struct {
	Amount               float64
	AmountLog10          float64
	PaymentMethodID       float64
	CurrencyID            float64
	CountryID             float64
	RiskScore             float64
	IsTokenized           float64
	Has3DS                float64
	PSPID                 float64
	HourOfDay             float64
	DayOfWeek             float64
	RecentSuccessRate7d   float64
	RecentProcessingTime7d float64
	RecentVolume7d        float64
	RiskAdjustedAmount    float64
	TimeOfDayCategory     float64
}

// timeOfDayCategory buckets an hour into night/morning/afternoon/evening,
// encoded numerically for the feature vector (0=night .. 3=evening).
func timeOfDayCategory(hour int) float64 {
	switch {
	case hour < 6:
		return 0
	case hour < 12:
		return 1
	case hour < 18:
		return 2
	default:
		return 3
	}
}

// countryCode is a small deterministic hash of a country string onto a
// stable numeric id, since the feature vector requires numeric inputs
// and the transaction only carries ISO country strings.
func countryCode(country string) float64 {
	var h uint32
	for _, r := range country {
		h = h*31 + uint32(r)
	}
	return float64(h % 1000)
}

// pspCode is the same deterministic hash applied to a psp name.
func pspCode(psp string) float64 {
	var h uint32
	for _, r := range psp {
		h = h*31 + uint32(r)
	}
	return float64(h % 1000)
}

// AssembleFeatures builds the feature vector for txn × candidate at the
// given instant (passed in, not read from the system clock, so assembly
// stays deterministic for callers that pin "now").
func AssembleFeatures(txn model.Transaction, candidate model.Candidate, now time.Time) FeatureVector {
	amount := txn.Amount
	riskAdjusted := amount * (1 + txn.RiskScore/100)

	tokenized := 0.0
	if txn.Tokenized {
		tokenized = 1
	}
	has3ds := 0.0
	if candidate.Supports3DS {
		has3ds = 1
	}

	return FeatureVector{
		Amount:                 amount,
		AmountLog10:            math.Log10(math.Max(amount, 1)),
		PaymentMethodID:        float64(txn.PaymentMethodID),
		CurrencyID:             float64(txn.CurrencyID),
		CountryID:              countryCode(txn.BuyerCountry),
		RiskScore:              txn.RiskScore,
		IsTokenized:            tokenized,
		Has3DS:                 has3ds,
		PSPID:                  pspCode(candidate.PSPName),
		HourOfDay:              float64(now.Hour()),
		DayOfWeek:              float64(now.Weekday()),
		RecentSuccessRate7d:    candidate.RecentAuthRate,
		RecentProcessingTime7d: candidate.MeanProcessingTime,
		RecentVolume7d:         float64(candidate.TotalCount),
		RiskAdjustedAmount:     riskAdjusted,
		TimeOfDayCategory:      timeOfDayCategory(now.Hour()),
	}
}
