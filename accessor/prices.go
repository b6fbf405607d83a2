// Copyright (c) 2026 BVK Chaitanya

// Package accessor wraps the exchange operations with time-to-live caches so
// that the rate limited exchange apis are not called for every lookup.
//
// Tickers are cached per exchange, balances and order histories are cached
// per account. Every refresh replaces the whole cached value for the exchange
// or the account.
package accessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/ttlcache"
	"github.com/shopspring/decimal"
)

var ErrUnknownMarket = errors.New("unknown market")

// TTLFunc returns the current time-to-live for a cache. It is invoked on
// every access so that ttl changes take effect immediately.
type TTLFunc func() time.Duration

// ExchangeGetter resolves exchange names into exchange variants.
type ExchangeGetter interface {
	Get(name string) (exchange.Exchange, error)
}

type Prices struct {
	exchanges ExchangeGetter

	ttl TTLFunc

	cache *ttlcache.Cache[string, map[string]*exchange.Ticker]
}

func NewPrices(exchanges ExchangeGetter, ttl TTLFunc, opts *ttlcache.Options) *Prices {
	return &Prices{
		exchanges: exchanges,
		ttl:       ttl,
		cache:     ttlcache.New[string, map[string]*exchange.Ticker](opts),
	}
}

// Tickers returns all tickers of an exchange, refreshing them if necessary.
func (p *Prices) Tickers(ctx context.Context, exchangeName string) (map[string]*exchange.Ticker, error) {
	ex, err := p.exchanges.Get(exchangeName)
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context) (map[string]*exchange.Ticker, error) {
		return ex.GetTickers(ctx)
	}
	tickers, err := p.cache.Get(ctx, ex.Name(), p.ttl(), fetch)
	if err != nil {
		return nil, fmt.Errorf("could not refresh tickers for %s: %w", exchangeName, err)
	}
	return tickers, nil
}

// Ticker returns the ticker for a market. Returns ErrUnknownMarket if the
// market is not found.
func (p *Prices) Ticker(ctx context.Context, exchangeName, market string) (*exchange.Ticker, error) {
	tickers, err := p.Tickers(ctx, exchangeName)
	if err != nil {
		return nil, err
	}
	ticker, ok := tickers[market]
	if !ok {
		return nil, fmt.Errorf("market %q on %s: %w", market, exchangeName, ErrUnknownMarket)
	}
	return ticker, nil
}

func (p *Prices) pairTicker(ctx context.Context, exchangeName, mainCoin, altCoin string) (*exchange.Ticker, error) {
	ex, err := p.exchanges.Get(exchangeName)
	if err != nil {
		return nil, err
	}
	return p.Ticker(ctx, exchangeName, ex.CreateMarket(mainCoin, altCoin))
}

// Ask returns the lowest ask price for alt-coin in terms of the main-coin.
func (p *Prices) Ask(ctx context.Context, exchangeName, mainCoin, altCoin string) (decimal.Decimal, error) {
	t, err := p.pairTicker(ctx, exchangeName, mainCoin, altCoin)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Ask, nil
}

// Bid returns the highest bid price for alt-coin in terms of the main-coin.
func (p *Prices) Bid(ctx context.Context, exchangeName, mainCoin, altCoin string) (decimal.Decimal, error) {
	t, err := p.pairTicker(ctx, exchangeName, mainCoin, altCoin)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Bid, nil
}
