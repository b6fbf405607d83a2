// Copyright (c) 2026 BVK Chaitanya

package accessor

import (
	"context"
	"fmt"
	"maps"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/ttlcache"
	"github.com/shopspring/decimal"
)

type Balances struct {
	exchanges ExchangeGetter

	ttl TTLFunc

	cache *ttlcache.Cache[string, map[string]decimal.Decimal]
}

func NewBalances(exchanges ExchangeGetter, ttl TTLFunc, opts *ttlcache.Options) *Balances {
	return &Balances{
		exchanges: exchanges,
		ttl:       ttl,
		cache:     ttlcache.New[string, map[string]decimal.Decimal](opts),
	}
}

func (b *Balances) get(ctx context.Context, a *account.Account) (map[string]decimal.Decimal, error) {
	ex, err := b.exchanges.Get(a.Exchange())
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context) (map[string]decimal.Decimal, error) {
		return ex.GetBalances(ctx, a.Credentials())
	}
	balances, err := b.cache.Get(ctx, a.String(), b.ttl(), fetch)
	if err != nil {
		return nil, fmt.Errorf("could not refresh balances for %s: %w", a, err)
	}
	return balances, nil
}

// Balance returns the account balance for a currency. Unknown currencies have
// a zero balance.
func (b *Balances) Balance(ctx context.Context, a *account.Account, currency string) (decimal.Decimal, error) {
	balances, err := b.get(ctx, a)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[currency], nil
}

// All returns a copy of all balances of the account.
func (b *Balances) All(ctx context.Context, a *account.Account) (map[string]decimal.Decimal, error) {
	balances, err := b.get(ctx, a)
	if err != nil {
		return nil, err
	}
	return maps.Clone(balances), nil
}

// Invalidate forces a refresh on the next access, e.g., after an order is
// placed for the account.
func (b *Balances) Invalidate(a *account.Account) {
	b.cache.Invalidate(a.String())
}
