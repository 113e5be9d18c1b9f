package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
	"github.com/nimbus-psp/psp-router/internal/config"
	"github.com/nimbus-psp/psp-router/internal/feedback"
	"github.com/nimbus-psp/psp-router/internal/historicalstore"
	"github.com/nimbus-psp/psp-router/internal/predictor"
	"github.com/nimbus-psp/psp-router/internal/retrain"
	"github.com/nimbus-psp/psp-router/internal/router"
	"github.com/nimbus-psp/psp-router/internal/telemetry"
)

// engine bundles every long-lived collaborator the serve and simulate
// commands both need, assembled once from the process's flags.
type engine struct {
	weights   *config.Loader
	history   *historicalstore.Store
	store     *candidatestore.Store
	predictor predictor.Predictor
	router    *router.Router
	ingestor  *feedback.Ingestor
	scheduler *retrain.Scheduler
	metrics   *telemetry.Registry
}

// buildEngine wires every component the same way regardless of which
// subcommand runs, so serve and simulate never drift from one another.
func buildEngine() (*engine, error) {
	weights, err := loadWeights()
	if err != nil {
		return nil, err
	}

	history := historicalstore.New()
	seedSyntheticHistory(history)

	storeOpts := []candidatestore.Option{candidatestore.WithRetrainer(retrain.LoggingRetrainer{})}
	if redisAddr != "" {
		storeOpts = append(storeOpts, candidatestore.WithRedisCache(redis.NewClient(&redis.Options{Addr: redisAddr})))
	}
	store := candidatestore.New(history, weights, storeOpts...)

	pred, err := buildPredictor(weights)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New()
	store.OnEvent(metrics.OnRouterEvent)

	r := router.New(store, pred, weights)
	r.OnEvent(metrics.OnRouterEvent)

	queueDepth := feedbackQueue
	if queueDepth <= 0 {
		queueDepth = weights.Current().FeedbackQueueDepth
	}
	ingestor := feedback.New(store, queueDepth, feedbackWorkers)
	ingestor.OnEvent(metrics.OnRouterEvent)

	scheduler := retrain.NewScheduler(store, weights.Current().RetrainInterval)

	return &engine{
		weights:   weights,
		history:   history,
		store:     store,
		predictor: pred,
		router:    r,
		ingestor:  ingestor,
		scheduler: scheduler,
		metrics:   metrics,
	}, nil
}

func loadWeights() (*config.Loader, error) {
	if configPath == "" {
		return config.NewLoader(), nil
	}
	return config.LoadFromFile(configPath)
}

func buildPredictor(weights *config.Loader) (predictor.Predictor, error) {
	switch predictorKind {
	case "local":
		le := predictor.NewLocalEnsemble(modelVersion, weights.Current().PredictTimeout)
		if err := le.Load(context.Background()); err != nil {
			return nil, fmt.Errorf("loading local predictor: %w", err)
		}
		return le, nil
	case "null":
		return predictor.NullPredictor{}, nil
	case "remote":
		if remoteURL == "" {
			return nil, fmt.Errorf("--predictor-url is required for the remote predictor variant")
		}
		rp := predictor.NewRemotePredictor(&http.Client{Timeout: 5 * time.Second}, remoteURL, modelVersion, weights.Current().PredictTimeout)
		rp.SetReady(true)
		return rp, nil
	default:
		return nil, fmt.Errorf("unknown predictor variant %q", predictorKind)
	}
}

// seedSyntheticHistory populates the reference historical store with a
// handful of PSPs across the two most common segments, so serve and
// simulate both have eligible candidates without an external history
// feed — mirroring the teacher's MockProcessor default outcome mix.
func seedSyntheticHistory(h *historicalstore.Store) {
	seeds := []historicalstore.RowSeed{
		{PSPName: "alpha-pay", RowCount: 500, ApprovalRate: 0.92, MeanFeeBps: 180, FixedFee: 0.10, Supports3DS: true, SupportsTokenized: true},
		{PSPName: "beta-processing", RowCount: 500, ApprovalRate: 0.88, MeanFeeBps: 150, FixedFee: 0.05, Supports3DS: true, SupportsTokenized: false},
		{PSPName: "gamma-gateway", RowCount: 500, ApprovalRate: 0.95, MeanFeeBps: 220, FixedFee: 0.15, Supports3DS: false, SupportsTokenized: true},
	}
	h.Seed(1, 1, seeds)
	h.Seed(1, 2, seeds)
}
