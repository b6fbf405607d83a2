// Copyright (c) 2026 BVK Chaitanya

// Package replacer cancels stale open orders and queues fresh orders for the
// same side at the current prices.
package replacer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/exchange"
)

type Builder interface {
	Build(ctx context.Context, order *exchange.MarketOrder) error
}

type Enqueuer interface {
	Enqueue(order *exchange.MarketOrder)
}

type Options struct {
	Now func() time.Time

	// MaxAge returns the age after which an open order is stale.
	MaxAge accessor.TTLFunc

	// Enabled is the initial value of the replace flag.
	Enabled bool
}

func (v *Options) setDefaults() {
	if v.Now == nil {
		v.Now = time.Now
	}
	if v.MaxAge == nil {
		v.MaxAge = func() time.Duration { return 30 * time.Minute }
	}
}

type Replacer struct {
	opts Options

	accounts  *account.Registry
	exchanges accessor.ExchangeGetter

	builder Builder
	queue   Enqueuer

	enabled atomic.Bool
}

func New(accounts *account.Registry, exchanges accessor.ExchangeGetter, builder Builder, queue Enqueuer, opts *Options) *Replacer {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	r := &Replacer{
		opts:      *opts,
		accounts:  accounts,
		exchanges: exchanges,
		builder:   builder,
		queue:     queue,
	}
	r.enabled.Store(opts.Enabled)
	return r
}

func (r *Replacer) Enabled() bool {
	return r.enabled.Load()
}

func (r *Replacer) SetEnabled(v bool) {
	if old := r.enabled.Swap(v); old != v {
		slog.Info("open order replacement flag is updated", "enabled", v)
	}
}

// HandleEvent tracks the replace flag setting.
func (r *Replacer) HandleEvent(e event.Event) {
	if v, ok := e.(event.ReplaceFlagChanged); ok {
		r.SetEnabled(v.Enabled)
	}
}

// Stale returns the open orders of an account older than the max age. Only
// the orders in the account's main currency are considered.
func (r *Replacer) Stale(ctx context.Context, a *account.Account) ([]*exchange.HistoricalOrder, error) {
	ex, err := r.exchanges.Get(a.Exchange())
	if err != nil {
		return nil, err
	}
	orders, err := ex.GetOpenOrders(ctx, a.Credentials())
	if err != nil {
		return nil, fmt.Errorf("could not fetch open orders of %s: %w", a, err)
	}
	maxAge := r.opts.MaxAge()
	now := r.opts.Now()
	var stale []*exchange.HistoricalOrder
	for _, o := range orders {
		if o.MainCoin != a.MainCurrency() || o.Type == exchange.Unsupported {
			continue
		}
		if now.Sub(time.Unix(o.Timestamp, 0)) < maxAge {
			continue
		}
		stale = append(stale, o)
	}
	return stale, nil
}

// Check scans open orders of all accounts and replaces the stale ones when
// replacement is enabled. It returns the number of new orders queued.
// Failures are isolated to the account.
func (r *Replacer) Check(ctx context.Context) (int, error) {
	var errs []error
	nqueued := 0
	for _, exName := range r.accounts.Exchanges() {
		for _, a := range r.accounts.GetAccounts(exName) {
			n, err := r.checkAccount(ctx, a)
			if err != nil {
				if ctx.Err() != nil {
					return nqueued, context.Cause(ctx)
				}
				slog.Warn("could not check open orders (will retry)", "account", a, "err", err)
				errs = append(errs, err)
			}
			nqueued += n
		}
	}
	return nqueued, errors.Join(errs...)
}

func (r *Replacer) checkAccount(ctx context.Context, a *account.Account) (int, error) {
	stale, err := r.Stale(ctx, a)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if !r.Enabled() {
		slog.Info("found stale open orders, but replacement is disabled", "account", a, "count", len(stale))
		return 0, nil
	}

	ex, err := r.exchanges.Get(a.Exchange())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range stale {
		if err := ex.CancelOrder(ctx, o.OrderID, a.Credentials()); err != nil {
			return n, fmt.Errorf("could not cancel order %s: %w", o.OrderID, err)
		}
		slog.Info("cancelled stale open order", "account", a, "order-id", o.OrderID, "type", o.Type, "alt", o.AltCoin)

		order := &exchange.MarketOrder{
			Exchange: a.Exchange(),
			Account:  a.Name(),
			MainCoin: o.MainCoin,
			AltCoin:  o.AltCoin,
			Type:     o.Type,
		}
		if err := r.builder.Build(ctx, order); err != nil {
			slog.Warn("could not build replacement order (ignored)", "order", order, "err", err)
			continue
		}
		if !order.Quantity.IsPositive() {
			slog.Info("replacement order is skipped", "order", order)
			continue
		}
		r.queue.Enqueue(order)
		n++
	}
	return n, nil
}
