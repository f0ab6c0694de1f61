package binanceoracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"marginbot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	quoteAsset = "USDT"
)

// Client implements the ports.PriceOracle interface against the
// Binance spot ticker endpoint using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance oracle adapter.
// API keys are optional: the ticker endpoint is public.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance price oracle adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance oracle")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance oracle configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// normalizeSymbol upper-cases the symbol and appends the USDT quote
// asset when the caller passed a bare base asset like "btc".
func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.HasSuffix(s, quoteAsset) {
		s += quoteAsset
	}
	return s
}

// handleError translates Binance API errors into standardized port errors.
func (c *Client) handleError(ctx context.Context, err error, symbol string) error {
	fields := map[string]interface{}{"symbol": symbol, "originalError": err.Error()}

	mappedErr := ports.ErrPriceUnavailable
	var apiErr *common.APIError
	switch {
	case errors.As(err, &apiErr):
		fields["apiErrorCode"] = apiErr.Code
		if apiErr.Code == -1003 {
			mappedErr = ports.ErrRateLimited
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		mappedErr = ports.ErrContextCanceled
	}

	c.logger.Error(ctx, err, "GetPrice failed", fields)
	return fmt.Errorf("get price for %s: %w: %w", symbol, mappedErr, err)
}

// GetPrice retrieves the last spot price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := normalizeSymbol(symbol)
	prices, err := c.spotClient.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, c.handleError(ctx, err, sym)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s: %w", sym, ports.ErrPriceUnavailable)
		c.logger.Error(ctx, err, "GetPrice returned empty result", map[string]interface{}{"symbol": sym})
		return decimal.Decimal{}, err
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price %q for %s: %w: %w", prices[0].Price, sym, ports.ErrPriceUnavailable, err)
		c.logger.Error(ctx, parseErr, "GetPrice parse failure", map[string]interface{}{"symbol": sym})
		return decimal.Decimal{}, parseErr
	}
	if !price.IsPositive() {
		err := fmt.Errorf("non-positive price %s for %s: %w", price, sym, ports.ErrPriceUnavailable)
		return decimal.Decimal{}, err
	}

	c.logger.Debug(ctx, "GetPrice successful", map[string]interface{}{"symbol": sym, "price": price})
	return price, nil
}
