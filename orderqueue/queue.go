// Copyright (c) 2026 BVK Chaitanya

// Package orderqueue buffers orders produced by the signal and stoploss
// paths and places them on the exchanges in a batch.
package orderqueue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/journal"
	"github.com/google/uuid"
)

// Recorder saves placement attempts.
type Recorder interface {
	Record(ctx context.Context, e *journal.Entry) error
}

// Invalidator drops cached account data after orders are placed.
type Invalidator interface {
	Invalidate(a *account.Account)
}

type Options struct {
	// Journal is optional.
	Journal Recorder

	// Invalidators are notified after an order is placed for an account so
	// that the stale balances and histories are not used.
	Invalidators []Invalidator
}

// Queue is a FIFO of orders waiting to be placed. All methods are safe for
// concurrent use.
type Queue struct {
	mu sync.Mutex

	orders []*exchange.MarketOrder

	accounts  *account.Registry
	exchanges accessor.ExchangeGetter
	bus       *event.Bus

	opts Options
}

func New(accounts *account.Registry, exchanges accessor.ExchangeGetter, bus *event.Bus, opts *Options) *Queue {
	q := &Queue{
		accounts:  accounts,
		exchanges: exchanges,
		bus:       bus,
	}
	if opts != nil {
		q.opts = *opts
	}
	return q
}

func (q *Queue) Enqueue(order *exchange.MarketOrder) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.orders = append(q.orders, order)
	slog.Debug("enqueued order", "order", order, "pending", len(q.orders))
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.orders)
}

// Pending returns copies of the orders waiting in the queue.
func (q *Queue) Pending() []*exchange.MarketOrder {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*exchange.MarketOrder, 0, len(q.orders))
	for _, o := range q.orders {
		pending = append(pending, o.Clone())
	}
	return pending
}

func (q *Queue) drain() []*exchange.MarketOrder {
	q.mu.Lock()
	defer q.mu.Unlock()

	orders := q.orders
	q.orders = nil
	return orders
}

// Flush places all orders that are in the queue at the time of the call.
// Orders are removed from the queue whether they are placed successfully or
// not. Returns the number of orders placed.
func (q *Queue) Flush(ctx context.Context) int {
	orders := q.drain()

	nplaced := 0
	for i, order := range orders {
		if ctx.Err() != nil {
			slog.Warn("dropping orders after context cancellation", "dropped", len(orders)-i, "err", context.Cause(ctx))
			break
		}
		if order.ClientOrderID == "" {
			order.ClientOrderID = uuid.NewString()
		}
		if !order.Placeable() {
			slog.Info("skipping order that cannot be placed", "order", order)
			q.record(ctx, journal.NewEntry(order, journal.Skipped, "", nil))
			continue
		}

		id, err := q.place(ctx, order)
		if err != nil {
			slog.Error("could not place order (dropped)", "order", order, "err", err)
			q.record(ctx, journal.NewEntry(order, journal.Failed, "", err))
			continue
		}
		nplaced++
		slog.Info("placed order", "order", order, "order-id", id)
		q.record(ctx, journal.NewEntry(order, journal.Placed, id, nil))

		if q.bus != nil {
			q.bus.Publish(event.OrderPlaced{
				Exchange: order.Exchange,
				Account:  order.Account,
				AltCoin:  order.AltCoin,
				Side:     order.Type,
				OrderID:  id,
				Order:    order.Clone(),
			})
		}
	}
	return nplaced
}

func (q *Queue) place(ctx context.Context, order *exchange.MarketOrder) (string, error) {
	a, err := q.accounts.GetAccount(order.Exchange, order.Account)
	if err != nil {
		return "", err
	}
	ex, err := q.exchanges.Get(order.Exchange)
	if err != nil {
		return "", err
	}
	id, err := ex.PlaceOrder(ctx, order, a.Credentials())
	if err != nil {
		return "", fmt.Errorf("could not place order %s: %w", order, err)
	}
	for _, inv := range slices.Clone(q.opts.Invalidators) {
		inv.Invalidate(a)
	}
	return id, nil
}

func (q *Queue) record(ctx context.Context, e *journal.Entry) {
	if q.opts.Journal == nil {
		return
	}
	if err := q.opts.Journal.Record(ctx, e); err != nil {
		slog.Warn("could not record order in the journal (ignored)", "order-id", e.ID, "err", err)
	}
}
