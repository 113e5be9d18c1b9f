package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/nimbus-psp/psp-router/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP decision API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	eng.ingestor.Start()
	defer eng.ingestor.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.scheduler.Run(ctx)
	defer eng.scheduler.Stop()

	handler := httpapi.New(eng.router, eng.store, eng.predictor, eng.ingestor)

	mux := chi.NewRouter()
	mux.Mount("/", handler.Routes())
	mux.Handle("/metrics", eng.metrics.Handler())

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("router_serving", "addr", listenAddr, "predictor", predictorKind)
		serverErr <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sig:
		slog.Info("router_shutting_down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
