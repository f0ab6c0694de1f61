package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"marginbot/config"
	"marginbot/internal/adapters/binanceoracle"
	"marginbot/internal/adapters/logger"
)

var priceCmd = &cobra.Command{
	Use:   "price <symbol>",
	Short: "Look up the current market price for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		oracle, err := binanceoracle.New(binanceoracle.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     logger.NewStdLogger(cfg.LogLevel),
		})
		if err != nil {
			return err
		}
		price, err := oracle.GetPrice(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s USD\n", args[0], price)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
}
