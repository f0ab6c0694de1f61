package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"marginbot/config"
	"marginbot/internal/adapters/binanceoracle"
	"marginbot/internal/adapters/logger"
	"marginbot/internal/adapters/sqlite"
	"marginbot/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "traderctl",
	Short: "Manage leveraged positions against the shared snapshot store",
	Long: `traderctl operates on the same snapshot database as the monitoring
daemon: deposit or withdraw funds, open and close leveraged positions,
and inspect live position status.

Each invocation loads the snapshot, performs one operation and saves
the result. Continuous take-profit/stop-loss/liquidation monitoring is
the daemon's job; run the marginbot binary for that.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

// withService wires the full stack, restores state, runs fn, then
// stops monitors and persists. One invocation is one unit of work.
func withService(fn func(ctx context.Context, svc *app.TradingService) error) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	gateway, err := sqlite.NewGateway(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return err
	}
	defer gateway.Close()

	oracle, err := binanceoracle.New(binanceoracle.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return err
	}

	svc, err := app.NewTradingService(cfg, appLogger, oracle, gateway)
	if err != nil {
		return err
	}
	if err := svc.Restore(ctx); err != nil {
		return err
	}
	defer svc.Shutdown(ctx)

	return fn(ctx, svc)
}
