package cmd

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"marginbot/internal/app"
	"marginbot/internal/domain"
)

var (
	openLeverage  int
	openDirection string
	openTP        string
	openSL        string
	listOpenOnly  bool
)

var openCmd = &cobra.Command{
	Use:   "open <user-id> <symbol> <margin>",
	Short: "Open a leveraged position",
	Long: `Open a leveraged position. The margin is debited from the user's
ledger at the current market price.

Examples:
  traderctl open alice BTC 1000 --direction long --leverage 10 --tp 110000
  traderctl open alice ETH 500 --direction short --leverage 5 --sl 4200`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		margin, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid margin %q: %w", args[2], err)
		}
		params := domain.OpenParams{
			Symbol:    args[1],
			Margin:    margin,
			Leverage:  openLeverage,
			Direction: domain.Direction(openDirection),
		}
		if openTP != "" {
			if params.TakeProfit, err = decimal.NewFromString(openTP); err != nil {
				return fmt.Errorf("invalid take-profit %q: %w", openTP, err)
			}
		}
		if openSL != "" {
			if params.StopLoss, err = decimal.NewFromString(openSL); err != nil {
				return fmt.Errorf("invalid stop-loss %q: %w", openSL, err)
			}
		}
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			pos, err := svc.OpenPosition(ctx, args[0], params)
			if err != nil {
				return err
			}
			fmt.Printf("Opened %s %s position %s\n", pos.Direction, pos.Symbol, pos.ID)
			fmt.Printf("  entry price: %s, quantity: %s, leverage: x%d\n",
				pos.EntryPrice, pos.Quantity, pos.Leverage)
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <user-id> <position-id>",
	Short: "Close a position at the current market price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			pos, err := svc.ClosePosition(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			profit, roi, ok := pos.Realized()
			if !ok {
				fmt.Printf("Position %s is still open\n", pos.ID)
				return nil
			}
			fmt.Printf("Position %s closed (%s): profit %s USD, ROI %s%%\n",
				pos.ID, pos.Reason(), profit.StringFixed(2), roi.StringFixed(2))
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's positions in creation order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			var (
				positions []*domain.Position
				err       error
			)
			if listOpenOnly {
				positions, err = svc.ListOpenPositions(args[0])
			} else {
				positions, err = svc.ListPositions(args[0])
			}
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Println("No positions.")
				return nil
			}
			for _, pos := range positions {
				line := fmt.Sprintf("%s  %-5s %-5s x%-3d margin=%s entry=%s status=%s",
					pos.ID, pos.Direction, pos.Symbol, pos.Leverage,
					pos.Margin.StringFixed(2), pos.EntryPrice, pos.Status())
				if profit, roi, ok := pos.Realized(); ok {
					line += fmt.Sprintf(" profit=%s roi=%s%% reason=%s",
						profit.StringFixed(2), roi.StringFixed(2), pos.Reason())
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <user-id> <position-id>",
	Short: "Show a live status snapshot for one position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *app.TradingService) error {
			snap, err := svc.PositionStatus(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Position %s [%s]\n", snap.PositionID, snap.PositionStatus)
			if snap.Err != nil {
				fmt.Printf("  price unavailable: %v\n", snap.Err)
			} else {
				fmt.Printf("  price: %s, profit: %s USD, ROI: %s%%\n",
					snap.CurrentPrice, snap.Profit.StringFixed(2), snap.ROI.StringFixed(2))
			}
			if snap.LastMessage != "" {
				fmt.Printf("  last message: %s\n", snap.LastMessage)
			}
			return nil
		})
	},
}

func init() {
	openCmd.Flags().IntVar(&openLeverage, "leverage", 1, "leverage multiplier (>= 1)")
	openCmd.Flags().StringVar(&openDirection, "direction", "long", "position direction: long or short")
	openCmd.Flags().StringVar(&openTP, "tp", "", "take-profit trigger price")
	openCmd.Flags().StringVar(&openSL, "sl", "", "stop-loss trigger price")
	listCmd.Flags().BoolVar(&listOpenOnly, "open", false, "only list open positions")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}
