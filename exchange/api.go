// Copyright (c) 2023 BVK Chaitanya

package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrExchange is wrapped by all transport and protocol failures reported
	// by the exchange clients.
	ErrExchange = errors.New("exchange error")

	ErrUnknownExchange = errors.New("unknown exchange")

	ErrUnsupportedOrderType = errors.New("unsupported order type")
)

// Credentials holds the api key and secret for an exchange account.
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (v *Credentials) Check() error {
	if v == nil || len(v.Key) == 0 || len(v.Secret) == 0 {
		return errors.New("api key and secret cannot be empty")
	}
	return nil
}

// Exchange defines the operations required from every exchange
// variant. Errors returned by these methods wrap ErrExchange.
type Exchange interface {
	Name() string

	// GetTickers returns the current tickers for all markets, keyed by the
	// exchange market name.
	GetTickers(ctx context.Context) (map[string]*Ticker, error)

	// GetBalances returns total balances for an account keyed by the currency
	// symbol.
	GetBalances(ctx context.Context, creds *Credentials) (map[string]decimal.Decimal, error)

	// GetOrderHistory returns closed orders of the account.
	GetOrderHistory(ctx context.Context, creds *Credentials) ([]*HistoricalOrder, error)

	// PlaceOrder submits a limit order and returns the exchange assigned order
	// id.
	PlaceOrder(ctx context.Context, order *MarketOrder, creds *Credentials) (string, error)

	CancelOrder(ctx context.Context, orderID string, creds *Credentials) error

	GetOpenOrders(ctx context.Context, creds *Credentials) ([]*HistoricalOrder, error)

	// CreateMarket returns the exchange specific market name for a currency
	// pair.
	CreateMarket(mainCoin, altCoin string) string

	// TakerFee and MakerFee are fractions, i.e., 0.0025 is 0.25%.
	TakerFee() decimal.Decimal
	MakerFee() decimal.Decimal

	// MinimumOrderAmount is the smallest order value allowed by the exchange
	// in the main currency.
	MinimumOrderAmount() decimal.Decimal
}

// MarketWatcher is an optional interface implemented by exchanges that can
// stream live quotes for a subset of markets.
type MarketWatcher interface {
	WatchMarket(ctx context.Context, market string) error
	UnwatchMarket(ctx context.Context, market string) error
}
