// Copyright (c) 2026 BVK Chaitanya

package accessor

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/ttlcache"
)

type Histories struct {
	exchanges ExchangeGetter

	ttl TTLFunc

	cache *ttlcache.Cache[string, []*exchange.HistoricalOrder]
}

func NewHistories(exchanges ExchangeGetter, ttl TTLFunc, opts *ttlcache.Options) *Histories {
	return &Histories{
		exchanges: exchanges,
		ttl:       ttl,
		cache:     ttlcache.New[string, []*exchange.HistoricalOrder](opts),
	}
}

// History returns the closed orders of the account, oldest first. Returned
// slice must not be modified.
func (h *Histories) History(ctx context.Context, a *account.Account) ([]*exchange.HistoricalOrder, error) {
	ex, err := h.exchanges.Get(a.Exchange())
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context) ([]*exchange.HistoricalOrder, error) {
		orders, err := ex.GetOrderHistory(ctx, a.Credentials())
		if err != nil {
			return nil, err
		}
		orders = slices.Clone(orders)
		slices.SortStableFunc(orders, func(x, y *exchange.HistoricalOrder) int {
			return cmp.Compare(x.Timestamp, y.Timestamp)
		})
		return orders, nil
	}
	orders, err := h.cache.Get(ctx, a.String(), h.ttl(), fetch)
	if err != nil {
		return nil, fmt.Errorf("could not refresh order history for %s: %w", a, err)
	}
	return orders, nil
}

func (h *Histories) Invalidate(a *account.Account) {
	h.cache.Invalidate(a.String())
}
