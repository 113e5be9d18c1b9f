// Package cli assembles the router's cobra command tree. Grounded on
// inference-sim's cmd/root.go rootCmd/Execute shape, generalized from one
// run subcommand to serve plus predictor-variant flags.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath      string
	predictorKind   string
	remoteURL       string
	modelVersion    string
	listenAddr      string
	redisAddr       string
	feedbackWorkers int
	feedbackQueue   int
)

var rootCmd = &cobra.Command{
	Use:   "router",
	Short: "PSP intelligent router decision engine",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a weights/thresholds config file (yaml/json/toml); uses built-in defaults if empty")
	rootCmd.PersistentFlags().StringVar(&predictorKind, "predictor", "local", "predictor variant: local, null, or remote")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "predictor-url", "", "base URL for the remote predictor variant")
	rootCmd.PersistentFlags().StringVar(&modelVersion, "model-version", "v1", "model version string reported by ModelStatus")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "redis address for the segment cache; uses an in-process cache if empty")

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	serveCmd.Flags().IntVar(&feedbackWorkers, "feedback-workers", 4, "feedback ingestion worker pool size")
	serveCmd.Flags().IntVar(&feedbackQueue, "feedback-queue-depth", 0, "feedback queue capacity; 0 uses the configured default")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}
