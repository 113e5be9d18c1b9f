// Package model holds the data types shared by every component of the
// router: the inbound transaction, the candidate PSP set, feedback,
// predictions, and the outbound decision record.
package model

import "time"

// CardPaymentMethodID is the payment-method id reserved for card payments,
// the only method subject to SCA/3DS guardrails.
const CardPaymentMethodID = 1

// Transaction represents an incoming payment that needs a PSP decision.
type Transaction struct {
	MerchantID      string    `json:"merchant_id"`
	BuyerCountry    string    `json:"buyer_country"`
	MerchantCountry string    `json:"merchant_country"`
	CurrencyID      int       `json:"currency_id"`
	PaymentMethodID int       `json:"payment_method_id"`
	Amount          float64   `json:"amount"`
	CardBIN         string    `json:"card_bin,omitempty"`
	Tokenized       bool      `json:"tokenized"`
	SCARequired     bool      `json:"sca_required"`
	RiskScore       float64   `json:"risk_score"`
	RequestedAt     time.Time `json:"requested_at"`
}

// IsCardPayment reports whether the payment method id refers to a card
// product.
func (t Transaction) IsCardPayment() bool {
	return t.PaymentMethodID == CardPaymentMethodID
}

// Health is a deterministic projection of a candidate's recent
// authorization rate onto a three-band classification.
type Health string

const (
	HealthGreen  Health = "green"
	HealthYellow Health = "yellow"
	HealthRed    Health = "red"
)

// AtLeast reports whether h is at least as good as other, ordering
// green > yellow > red.
func (h Health) AtLeast(other Health) bool {
	rank := map[Health]int{HealthRed: 0, HealthYellow: 1, HealthGreen: 2}
	return rank[h] >= rank[other]
}

// Candidate is a PSP snapshot as held by the Candidate Store: rolling
// performance statistics plus static capability flags.
type Candidate struct {
	PSPName            string    `json:"psp_name"`
	Supported          bool      `json:"supported"`
	Health             Health    `json:"health"`
	WindowAuthRate     float64   `json:"window_auth_rate"`
	RecentAuthRate     float64   `json:"recent_auth_rate"`
	SegmentAuthRate    float64   `json:"segment_auth_rate"`
	MeanFeeBps         float64   `json:"mean_fee_bps"`
	FixedFee           float64   `json:"fixed_fee"`
	Supports3DS        bool      `json:"supports_3ds"`
	SupportsTokenized  bool      `json:"supports_tokenized"`
	MeanProcessingTime float64   `json:"mean_processing_time_ms"`
	TotalCount         int       `json:"total_count"`
	TotalSuccesses     int       `json:"total_successes"`
	LastUpdated        time.Time `json:"last_updated"`
}

// AuthRate returns the candidate's lifetime authorization rate, or 0 when
// no feedback has been observed yet.
func (c Candidate) AuthRate() float64 {
	if c.TotalCount == 0 {
		return 0
	}
	return float64(c.TotalSuccesses) / float64(c.TotalCount)
}

// TotalFee returns the fee charged on the given amount: a fixed component
// plus the basis-points component.
func (c Candidate) TotalFee(amount float64) float64 {
	return c.FixedFee + amount*(c.MeanFeeBps/10000)
}

// Feedback is a single observed transaction outcome reported back to the
// Candidate Store after a PSP attempt.
type Feedback struct {
	DecisionID     string    `json:"decision_id"`
	PSPName        string    `json:"psp_name"`
	Authorized     bool      `json:"authorized"`
	Amount         float64   `json:"amount"`
	FeeAmount      float64   `json:"fee_amount"`
	ProcessingTime float64   `json:"processing_time_ms"`
	RiskScore      float64   `json:"risk_score"`
	ProcessedAt    time.Time `json:"processed_at"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Guardrail tags the reason a Decision's candidate set was narrowed, or
// "none" when every candidate survived.
type Guardrail string

const (
	GuardrailNone       Guardrail = "none"
	GuardrailCapability Guardrail = "capability"
	GuardrailHealth     Guardrail = "health"
	GuardrailCompliance Guardrail = "compliance"
)

// Constraints are the retry/compliance directives attached to a Decision.
type Constraints struct {
	MustUse3DS    bool `json:"must_use_3ds"`
	RetryWindowMs int  `json:"retry_window_ms"`
	MaxRetries    int  `json:"max_retries"`
}

// SchemaVersion is the fixed, bit-exact version stamped on every Decision.
const SchemaVersion = "1.0"

// Decision is the explainable routing output produced by a single call to
// Router.Decide. It is opaque to the engine once returned.
type Decision struct {
	SchemaVersion string      `json:"schema_version"`
	DecisionID    string      `json:"decision_id"`
	Candidate     string      `json:"candidate"`
	Alternates    []string    `json:"alternates"`
	Reasoning     string      `json:"reasoning"`
	Guardrail     Guardrail   `json:"guardrail"`
	Constraints   Constraints `json:"constraints"`
	FeaturesUsed  []string    `json:"features_used"`
}

// Prediction is the Predictor's output for a single (transaction,
// candidate) pair. Never persisted; consumed once by the Scorer.
type Prediction struct {
	PredictedAuthProbability float64   `json:"predicted_auth_probability"`
	PredictedProcessingTime  float64   `json:"predicted_processing_time_ms"`
	PredictedHealth          Health    `json:"predicted_health"`
	ModelVersion             string    `json:"model_version"`
	Timestamp                time.Time `json:"timestamp"`
}

// ModelState is the Predictor's readiness state machine, per spec.
type ModelState string

const (
	ModelNotLoaded  ModelState = "not_loaded"
	ModelLoading    ModelState = "loading"
	ModelReady      ModelState = "ready"
	ModelReloading  ModelState = "reloading"
	ModelFailed     ModelState = "failed"
)

// ModelStatus is the exposed ModelStatus() operation's response shape.
type ModelStatus struct {
	State        ModelState `json:"state"`
	ModelVersion string     `json:"model_version"`
}
