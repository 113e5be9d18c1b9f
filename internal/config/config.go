// Package config loads the router's weights and thresholds and keeps them
// hot-reloadable: every tunable named in spec.md §6 lives here as a single
// loaded struct behind an atomic pointer, watched for changes on disk.
package config

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Weights holds the product-tunable utility weights consumed by the
// Scorer, plus the thresholds and timeouts consumed by every other
// component. Loaded at startup, hot-reloadable.
type Weights struct {
	// Scorer weights.
	AuthWeight          float64            `mapstructure:"auth_weight"`
	FeeBpsWeight        float64            `mapstructure:"fee_bps_weight"`
	FixedFeeWeight      float64            `mapstructure:"fixed_fee_weight"`
	ThreeDSBonus        float64            `mapstructure:"three_ds_bonus_when_sca"`
	RiskPenaltyPerPoint float64            `mapstructure:"risk_penalty_per_point"`
	YellowHealthPenalty float64            `mapstructure:"yellow_health_penalty"`
	BusinessBiasWeight  float64            `mapstructure:"business_bias_weight"`
	BusinessBias        map[string]float64 `mapstructure:"business_bias"`

	// Health thresholds (rolling recent auth rate cutoffs).
	HealthGreenCutoff  float64 `mapstructure:"health_green_cutoff"`
	HealthYellowCutoff float64 `mapstructure:"health_yellow_cutoff"`

	// Candidate Store tunables.
	MinVolumeThreshold int           `mapstructure:"min_volume_threshold"`
	WindowDays         int           `mapstructure:"window_days"`
	RecentWindowDays   int           `mapstructure:"recent_window_days"`
	SegmentCacheTTL    time.Duration `mapstructure:"segment_cache_ttl"`
	SegmentFetchTimeout time.Duration `mapstructure:"segment_fetch_timeout"`
	DedupRingCapacity  int           `mapstructure:"dedup_ring_capacity"`

	// Retraining triggers.
	RetrainInterval      time.Duration `mapstructure:"retrain_interval"`
	RetrainFeedbackCount int           `mapstructure:"retrain_feedback_count"`

	// Predictor / Router timeouts.
	PredictTimeout   time.Duration `mapstructure:"predict_timeout"`
	RoutingDeadline  time.Duration `mapstructure:"routing_deadline"`

	// Decision defaults.
	RetryWindowMs int `mapstructure:"retry_window_ms"`
	MaxRetries    int `mapstructure:"max_retries"`

	// Feedback ingestion backpressure.
	FeedbackQueueDepth int `mapstructure:"feedback_queue_depth"`

	// Status codes in historical rows that the Candidate Store counts as
	// authorized.
	SuccessStatusCodes []int `mapstructure:"success_status_codes"`
}

// defaults returns the spec's documented defaults, applied before any file
// overrides via viper.SetDefault. Environment variables are not read.
func defaults() *Weights {
	return &Weights{
		AuthWeight:           1.0,
		FeeBpsWeight:         1.0,
		FixedFeeWeight:       1.0,
		ThreeDSBonus:         0.05,
		RiskPenaltyPerPoint:  0.002,
		YellowHealthPenalty:  0.05,
		BusinessBiasWeight:   1.0,
		BusinessBias:         map[string]float64{},
		HealthGreenCutoff:    0.80,
		HealthYellowCutoff:   0.60,
		MinVolumeThreshold:   10,
		WindowDays:           30,
		RecentWindowDays:     7,
		SegmentCacheTTL:      30 * time.Second,
		SegmentFetchTimeout:  time.Second,
		DedupRingCapacity:    1000,
		RetrainInterval:      24 * time.Hour,
		RetrainFeedbackCount: 1000,
		PredictTimeout:       100 * time.Millisecond,
		RoutingDeadline:      250 * time.Millisecond,
		RetryWindowMs:        8000,
		MaxRetries:           1,
		FeedbackQueueDepth:   10000,
		SuccessStatusCodes:   []int{5, 7, 9},
	}
}

// Loader owns a viper instance and the currently-active Weights, swapped
// atomically whenever the backing file changes.
type Loader struct {
	v       *viper.Viper
	current atomic.Pointer[Weights]
}

// NewLoader builds a Loader with spec-documented defaults applied, without
// reading any file — suitable for tests and for Decide paths that never
// touch disk.
func NewLoader() *Loader {
	l := &Loader{v: viper.New()}
	l.applyDefaults()
	l.current.Store(defaults())
	return l
}

func (l *Loader) applyDefaults() {
	d := defaults()
	l.v.SetDefault("auth_weight", d.AuthWeight)
	l.v.SetDefault("fee_bps_weight", d.FeeBpsWeight)
	l.v.SetDefault("fixed_fee_weight", d.FixedFeeWeight)
	l.v.SetDefault("three_ds_bonus_when_sca", d.ThreeDSBonus)
	l.v.SetDefault("risk_penalty_per_point", d.RiskPenaltyPerPoint)
	l.v.SetDefault("yellow_health_penalty", d.YellowHealthPenalty)
	l.v.SetDefault("business_bias_weight", d.BusinessBiasWeight)
	l.v.SetDefault("business_bias", d.BusinessBias)
	l.v.SetDefault("health_green_cutoff", d.HealthGreenCutoff)
	l.v.SetDefault("health_yellow_cutoff", d.HealthYellowCutoff)
	l.v.SetDefault("min_volume_threshold", d.MinVolumeThreshold)
	l.v.SetDefault("window_days", d.WindowDays)
	l.v.SetDefault("recent_window_days", d.RecentWindowDays)
	l.v.SetDefault("segment_cache_ttl", d.SegmentCacheTTL)
	l.v.SetDefault("segment_fetch_timeout", d.SegmentFetchTimeout)
	l.v.SetDefault("dedup_ring_capacity", d.DedupRingCapacity)
	l.v.SetDefault("retrain_interval", d.RetrainInterval)
	l.v.SetDefault("retrain_feedback_count", d.RetrainFeedbackCount)
	l.v.SetDefault("predict_timeout", d.PredictTimeout)
	l.v.SetDefault("routing_deadline", d.RoutingDeadline)
	l.v.SetDefault("retry_window_ms", d.RetryWindowMs)
	l.v.SetDefault("max_retries", d.MaxRetries)
	l.v.SetDefault("feedback_queue_depth", d.FeedbackQueueDepth)
	l.v.SetDefault("success_status_codes", d.SuccessStatusCodes)
}

// LoadFromFile reads weights/thresholds from the given file and starts
// watching it for changes, atomically swapping Current() on every write.
// The file format is inferred from its extension (yaml, json, toml...).
func LoadFromFile(path string) (*Loader, error) {
	l := &Loader{v: viper.New()}
	l.applyDefaults()
	l.v.SetConfigFile(path)

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	w, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current.Store(w)

	l.v.OnConfigChange(func(_ fsnotify.Event) {
		if w, err := l.decode(); err == nil {
			l.current.Store(w)
		}
	})
	l.v.WatchConfig()

	return l, nil
}

func (l *Loader) decode() (*Weights, error) {
	w := &Weights{}
	if err := l.v.Unmarshal(w); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return w, nil
}

// Current returns the active Weights snapshot. Safe for concurrent use
// with reloads triggered by the fsnotify watch.
func (l *Loader) Current() *Weights {
	return l.current.Load()
}
