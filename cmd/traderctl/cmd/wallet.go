package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"marginbot/internal/app"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's ledger balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			balance, err := svc.Balance(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Balance: %s USD\n", balance.StringFixed(2))
			return nil
		})
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit <user-id> <amount>",
	Short: "Deposit USD into a user's ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			if err := svc.Deposit(ctx, args[0], amount); err != nil {
				return err
			}
			balance, err := svc.Balance(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Deposited %s USD, balance is now %s USD\n", amount, balance.StringFixed(2))
			return nil
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <user-id> <amount>",
	Short: "Withdraw free USD from a user's ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			if err := svc.Withdraw(ctx, args[0], amount); err != nil {
				return err
			}
			balance, err := svc.Balance(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Withdrew %s USD, balance is now %s USD\n", amount, balance.StringFixed(2))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(withdrawCmd)
}
