package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimbus-psp/psp-router/internal/model"
)

var simulateCount int

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay synthetic transactions through the router and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulate()
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateCount, "count", 100, "number of synthetic transactions to replay")
}

func runSimulate() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	wins := make(map[string]int)
	failures := 0

	for i := 0; i < simulateCount; i++ {
		txn := model.Transaction{
			MerchantID:      "simulate-merchant",
			CurrencyID:      1,
			PaymentMethodID: model.CardPaymentMethodID,
			Amount:          5 + rand.Float64()*195,
			RiskScore:       rand.Float64() * 100,
			SCARequired:     rand.Float64() < 0.3,
			RequestedAt:     time.Now(),
		}
		d, err := eng.router.Decide(ctx, txn)
		if err != nil {
			failures++
			continue
		}
		wins[d.Candidate]++
	}

	fmt.Printf("simulated %d transactions, %d failed\n", simulateCount, failures)
	for psp, count := range wins {
		fmt.Printf("  %-20s %d\n", psp, count)
	}
	return nil
}
