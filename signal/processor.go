// Copyright (c) 2026 BVK Chaitanya

package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/gobs"
	"github.com/bvk/sigbot/kvutil"
	"github.com/bvkgo/kv"
)

const stateKey = "/signal/state"

// Builder sizes order skeletons.
type Builder interface {
	Build(ctx context.Context, order *exchange.MarketOrder) error
}

// Enqueuer accepts sized orders for placement.
type Enqueuer interface {
	Enqueue(order *exchange.MarketOrder)
}

type ProcessorOptions struct {
	Prefix string

	// MaxAge is the age after which processed message ids are forgotten.
	MaxAge time.Duration
}

// Processor converts mail signals into orders and enqueues them.
type Processor struct {
	mu sync.Mutex

	db kv.Database

	source   Source
	accounts *account.Registry
	builder  Builder
	queue    Enqueuer

	opts ProcessorOptions
}

// NewProcessor creates a processor. Source and database are optional; when
// source is nil signals can only be submitted directly.
func NewProcessor(db kv.Database, source Source, accounts *account.Registry, builder Builder, queue Enqueuer, opts *ProcessorOptions) *Processor {
	p := &Processor{
		db:       db,
		source:   source,
		accounts: accounts,
		builder:  builder,
		queue:    queue,
	}
	if opts != nil {
		p.opts = *opts
	}
	if p.opts.Prefix == "" {
		p.opts.Prefix = DefaultPrefix
	}
	if p.opts.MaxAge == 0 {
		p.opts.MaxAge = 24 * time.Hour
	}
	return p
}

func (p *Processor) loadState(ctx context.Context) (*gobs.SignalState, error) {
	state := &gobs.SignalState{MessageIDs: make(map[string]time.Time)}
	if p.db == nil {
		return state, nil
	}
	saved, err := kvutil.GetDB[gobs.SignalState](ctx, p.db, stateKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return nil, err
	}
	if saved.MessageIDs == nil {
		saved.MessageIDs = make(map[string]time.Time)
	}
	return saved, nil
}

// Check fetches new messages from the source and enqueues the orders for
// their signals. Returns the number of orders enqueued.
func (p *Processor) Check(ctx context.Context) (int, error) {
	if p.source == nil {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.loadState(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not load signal state: %w", err)
	}

	messages, err := p.source.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not fetch signal messages: %w", err)
	}

	now := time.Now()
	nenqueued := 0
	for _, m := range messages {
		id := m.ID
		if id == "" {
			id = fmt.Sprintf("%s/%d/%s", m.From, m.Date.Unix(), firstLine(m.Lines))
		}
		if _, ok := state.MessageIDs[id]; ok {
			slog.Debug("skipping already processed signal mail", "id", id)
			continue
		}
		state.MessageIDs[id] = now

		for _, line := range m.Lines {
			n, err := p.submit(ctx, line)
			if err != nil {
				if !errors.Is(err, os.ErrInvalid) {
					slog.Warn("could not process signal (dropped)", "from", m.From, "signal", line, "err", err)
				}
				continue
			}
			nenqueued += n
		}
	}

	for id, at := range state.MessageIDs {
		if now.Sub(at) > p.opts.MaxAge {
			delete(state.MessageIDs, id)
		}
	}
	state.LastPollAt = now
	if p.db != nil {
		if err := kvutil.SetDB(ctx, p.db, stateKey, state); err != nil {
			slog.Warn("could not save signal state (ignored)", "err", err)
		}
	}
	return nenqueued, nil
}

// Submit processes one signal line. Returns the number of orders enqueued.
func (p *Processor) Submit(ctx context.Context, line string) (int, error) {
	return p.submit(ctx, line)
}

func (p *Processor) submit(ctx context.Context, line string) (int, error) {
	sig, err := Parse(line, p.opts.Prefix)
	if err != nil {
		return 0, err
	}
	orders, err := sig.Orders(p.accounts)
	if err != nil {
		return 0, err
	}

	nenqueued := 0
	for _, order := range orders {
		if err := p.builder.Build(ctx, order); err != nil {
			slog.Warn("could not build order for the signal (skipped)", "signal", sig, "order", order, "err", err)
			continue
		}
		if !order.Placeable() {
			slog.Info("signal order has nothing to trade (skipped)", "signal", sig, "order", order)
			continue
		}
		p.queue.Enqueue(order)
		nenqueued++
	}
	slog.Info("processed signal", "signal", sig, "orders", nenqueued)
	return nenqueued, nil
}
