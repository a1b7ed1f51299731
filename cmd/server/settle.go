package main

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/app"
)

var settleCmd = &cobra.Command{
	Use:   "settle [contest-id]",
	Short: "Settle one contest, or sweep every ended live contest",
	Long: `Settles the named contest and prints the result. Without an argument,
activates due contests and settles every live contest that has ended, the
same work the scheduler does on each sweep.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSettle,
}

func init() {
	rootCmd.AddCommand(settleCmd)
}

func runSettle(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer a.Close()

	if len(args) == 1 {
		res, err := a.Contests.Settle(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	now := time.Now().UTC()
	activated, err := a.Contests.Activate(ctx, now)
	if err != nil {
		return fmt.Errorf("activate contests: %w", err)
	}
	settled, err := a.Contests.SweepDue(ctx, now)
	log.Info("sweep finished",
		zap.Int("activated", activated),
		zap.Int("settled", settled),
		zap.Error(err))
	fmt.Fprintf(cmd.OutOrStdout(), "activated %d, settled %d\n", activated, settled)
	return err
}
