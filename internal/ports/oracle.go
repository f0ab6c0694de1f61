package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies the current market price for a symbol. It is
// the sole source of truth for both entry and live prices; the core
// performs no caching of its own beyond what a single poll observes.
//
// Implementations return an error wrapping ErrPriceUnavailable on
// network, protocol or parsing failures and for unknown symbols.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
