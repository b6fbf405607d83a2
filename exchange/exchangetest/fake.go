// Copyright (c) 2026 BVK Chaitanya

// Package exchangetest provides an in-memory exchange for tests.
package exchangetest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/bvk/sigbot/exchange"
	"github.com/shopspring/decimal"
)

// Fake is an exchange.Exchange with programmable tickers, balances and
// histories. Markets are named as "ALT-MAIN". All methods are safe for
// concurrent use.
type Fake struct {
	mu sync.Mutex

	name string

	takerFee, makerFee decimal.Decimal
	minOrderAmount     decimal.Decimal

	tickers    map[string]*exchange.Ticker
	balanceMap map[string]map[string]decimal.Decimal
	historyMap map[string][]*exchange.HistoricalOrder
	openMap    map[string][]*exchange.HistoricalOrder

	// Err, when non-nil, is returned by all api calls.
	Err error

	// FailKeys holds api keys for which all account calls fail.
	FailKeys map[string]error

	Placed    []*exchange.MarketOrder
	Cancelled []string

	// PlaceErr, when non-nil, is returned for order placements.
	PlaceErr error

	NumTickerCalls  int
	NumBalanceCalls int
	NumHistoryCalls int

	lastID int
}

var _ exchange.Exchange = &Fake{}

func New(name string) *Fake {
	return &Fake{
		name:       name,
		tickers:    make(map[string]*exchange.Ticker),
		balanceMap: make(map[string]map[string]decimal.Decimal),
		historyMap: make(map[string][]*exchange.HistoricalOrder),
		openMap:    make(map[string][]*exchange.HistoricalOrder),
		FailKeys:   make(map[string]error),
	}
}

func (f *Fake) SetFees(taker, maker float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.takerFee, f.makerFee = decimal.NewFromFloat(taker), decimal.NewFromFloat(maker)
}

func (f *Fake) SetMinimumOrderAmount(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minOrderAmount = decimal.NewFromFloat(v)
}

// SetTicker sets the ask and bid prices for a market.
func (f *Fake) SetTicker(mainCoin, altCoin string, ask, bid float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	market := f.CreateMarket(mainCoin, altCoin)
	f.tickers[market] = &exchange.Ticker{
		Market: market,
		Ask:    decimal.NewFromFloat(ask),
		Bid:    decimal.NewFromFloat(bid),
		Last:   decimal.NewFromFloat(bid),
	}
}

func (f *Fake) SetBalance(key, currency string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.balanceMap[key]
	if !ok {
		m = make(map[string]decimal.Decimal)
		f.balanceMap[key] = m
	}
	m[currency] = decimal.NewFromFloat(v)
}

func (f *Fake) AddHistory(key string, orders ...*exchange.HistoricalOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyMap[key] = append(f.historyMap[key], orders...)
}

func (f *Fake) AddOpenOrder(key string, orders ...*exchange.HistoricalOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openMap[key] = append(f.openMap[key], orders...)
}

func (f *Fake) PlacedOrders() []*exchange.MarketOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Placed)
}

func (f *Fake) Name() string {
	return f.name
}

func (f *Fake) accountErr(creds *exchange.Credentials) error {
	if f.Err != nil {
		return f.Err
	}
	if creds != nil {
		if err, ok := f.FailKeys[creds.Key]; ok {
			return err
		}
	}
	return nil
}

func credsKey(creds *exchange.Credentials) string {
	if creds == nil {
		return ""
	}
	return creds.Key
}

func (f *Fake) GetTickers(ctx context.Context) (map[string]*exchange.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NumTickerCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	tickers := make(map[string]*exchange.Ticker)
	for k, v := range f.tickers {
		t := *v
		tickers[k] = &t
	}
	return tickers, nil
}

func (f *Fake) GetBalances(ctx context.Context, creds *exchange.Credentials) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NumBalanceCalls++
	if err := f.accountErr(creds); err != nil {
		return nil, err
	}
	return maps.Clone(f.balanceMap[credsKey(creds)]), nil
}

func (f *Fake) GetOrderHistory(ctx context.Context, creds *exchange.Credentials) ([]*exchange.HistoricalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NumHistoryCalls++
	if err := f.accountErr(creds); err != nil {
		return nil, err
	}
	return slices.Clone(f.historyMap[credsKey(creds)]), nil
}

func (f *Fake) PlaceOrder(ctx context.Context, order *exchange.MarketOrder, creds *exchange.Credentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.accountErr(creds); err != nil {
		return "", err
	}
	if f.PlaceErr != nil {
		return "", f.PlaceErr
	}
	if !order.Placeable() {
		return "", fmt.Errorf("order %s is not placeable: %w", order, exchange.ErrExchange)
	}
	f.Placed = append(f.Placed, order.Clone())
	f.lastID++
	return strconv.Itoa(f.lastID), nil
}

func (f *Fake) CancelOrder(ctx context.Context, orderID string, creds *exchange.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.accountErr(creds); err != nil {
		return err
	}
	key := credsKey(creds)
	f.openMap[key] = slices.DeleteFunc(f.openMap[key], func(o *exchange.HistoricalOrder) bool {
		return o.OrderID == orderID
	})
	f.Cancelled = append(f.Cancelled, orderID)
	return nil
}

func (f *Fake) GetOpenOrders(ctx context.Context, creds *exchange.Credentials) ([]*exchange.HistoricalOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.accountErr(creds); err != nil {
		return nil, err
	}
	return slices.Clone(f.openMap[credsKey(creds)]), nil
}

func (f *Fake) CreateMarket(mainCoin, altCoin string) string {
	return altCoin + "-" + mainCoin
}

func (f *Fake) TakerFee() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.takerFee
}

func (f *Fake) MakerFee() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.makerFee
}

func (f *Fake) MinimumOrderAmount() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minOrderAmount
}
