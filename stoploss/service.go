// Copyright (c) 2026 BVK Chaitanya

// Package stoploss protects altcoin holdings with stoploss and trailing
// stoploss sell orders.
package stoploss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/boughtprice"
	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/gobs"
	"github.com/bvk/sigbot/kvutil"
	"github.com/bvkgo/kv"
)

// Keyspace is the database directory holding the saved positions.
const Keyspace = "/positions"

// Enqueuer accepts sell orders for placement.
type Enqueuer interface {
	Enqueue(order *exchange.MarketOrder)
}

// Components holds the collaborators of the stoploss service.
type Components struct {
	Accounts  *account.Registry
	Exchanges accessor.ExchangeGetter
	Prices    *accessor.Prices
	Balances  *accessor.Balances
	Estimator *boughtprice.Estimator
	Queue     Enqueuer
}

type Options struct {
	Now func() time.Time

	// OnInvalid, when non-nil, is invoked for positions dropped because they
	// could not be verified or their account is gone.
	OnInvalid func(state *gobs.PositionState, err error)
}

func (v *Options) setDefaults() {
	if v.Now == nil {
		v.Now = time.Now
	}
}

// Service maintains at most one position per exchange, account and altcoin.
// All methods are safe for concurrent use.
type Service struct {
	mu sync.Mutex

	db kv.Database

	accounts  *account.Registry
	exchanges accessor.ExchangeGetter
	prices    *accessor.Prices
	balances  *accessor.Balances
	estimator *boughtprice.Estimator
	queue     Enqueuer

	now       func() time.Time
	onInvalid func(*gobs.PositionState, error)

	positionMap map[Key]*Position
}

// New creates the stoploss service. Database is optional; positions are not
// saved when it is nil.
func New(db kv.Database, c *Components, opts *Options) *Service {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	return &Service{
		db:          db,
		accounts:    c.Accounts,
		exchanges:   c.Exchanges,
		prices:      c.Prices,
		balances:    c.Balances,
		estimator:   c.Estimator,
		queue:       c.Queue,
		now:         opts.Now,
		onInvalid:   opts.OnInvalid,
		positionMap: make(map[Key]*Position),
	}
}

func dbKey(k Key) string {
	return path.Join(Keyspace, k.Exchange, k.Account, k.AltCoin)
}

func normalize(k Key) Key {
	return Key{
		Exchange: strings.ToLower(k.Exchange),
		Account:  k.Account,
		AltCoin:  strings.ToUpper(k.AltCoin),
	}
}

// AddProtection starts protecting an altcoin holding. Returns false when the
// holding is protected already or when the account has stoploss disabled.
func (s *Service) AddProtection(ctx context.Context, key Key) (bool, error) {
	key = normalize(key)
	a, err := s.accounts.GetAccount(key.Exchange, key.Account)
	if err != nil {
		return false, err
	}
	if a.StoplossPercent().IsZero() {
		slog.Debug("stoploss is disabled for the account", "account", a)
		return false, nil
	}
	if strings.EqualFold(key.AltCoin, a.MainCurrency()) {
		return false, fmt.Errorf("main currency %s cannot be protected: %w", key.AltCoin, os.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(ctx, a, newPosition(key, s.now()))
}

func (s *Service) addLocked(ctx context.Context, a *account.Account, p *Position) (bool, error) {
	if _, ok := s.positionMap[p.key]; ok {
		return false, nil
	}
	if err := s.save(ctx, p); err != nil {
		return false, err
	}
	s.positionMap[p.key] = p
	s.watch(ctx, a, p.key)
	slog.Info("added stoploss protection", "position", p, "verified", p.state.Verified)
	return true, nil
}

// RemoveProtection stops protecting a holding. Returns false if the holding
// was not protected.
func (s *Service) RemoveProtection(ctx context.Context, key Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(ctx, normalize(key))
}

func (s *Service) removeLocked(ctx context.Context, key Key) (bool, error) {
	p, ok := s.positionMap[key]
	if !ok {
		return false, nil
	}
	delete(s.positionMap, key)
	s.unwatch(ctx, key)

	if s.db != nil {
		if err := kv.WithReadWriter(ctx, s.db, func(ctx context.Context, rw kv.ReadWriter) error {
			return rw.Delete(ctx, dbKey(key))
		}); err != nil && !errors.Is(err, os.ErrNotExist) {
			return true, fmt.Errorf("could not delete saved position %s: %w", p, err)
		}
	}
	slog.Info("removed stoploss protection", "position", p)
	return true, nil
}

func (s *Service) save(ctx context.Context, p *Position) error {
	if s.db == nil {
		return nil
	}
	if err := kvutil.SetDB(ctx, s.db, dbKey(p.key), p.state); err != nil {
		return fmt.Errorf("could not save position %s: %w", p, err)
	}
	return nil
}

func (s *Service) watch(ctx context.Context, a *account.Account, key Key) {
	ex, err := s.exchanges.Get(key.Exchange)
	if err != nil {
		return
	}
	if w, ok := ex.(exchange.MarketWatcher); ok {
		market := ex.CreateMarket(a.MainCurrency(), key.AltCoin)
		if err := w.WatchMarket(ctx, market); err != nil {
			slog.Warn("could not watch market prices (ignored)", "market", market, "err", err)
		}
	}
}

func (s *Service) unwatch(ctx context.Context, key Key) {
	a, err := s.accounts.GetAccount(key.Exchange, key.Account)
	if err != nil {
		return
	}
	ex, err := s.exchanges.Get(key.Exchange)
	if err != nil {
		return
	}
	w, ok := ex.(exchange.MarketWatcher)
	if !ok {
		return
	}
	market := ex.CreateMarket(a.MainCurrency(), key.AltCoin)
	for k := range s.positionMap {
		if k.Exchange != key.Exchange || k.AltCoin != key.AltCoin {
			continue
		}
		if other, err := s.accounts.GetAccount(k.Exchange, k.Account); err == nil && ex.CreateMarket(other.MainCurrency(), k.AltCoin) == market {
			return
		}
	}
	if err := w.UnwatchMarket(ctx, market); err != nil {
		slog.Warn("could not unwatch market prices (ignored)", "market", market, "err", err)
	}
}

// StartAll restores the saved positions and adds protection for the
// existing holdings that are worth more than the exchange's minimum order
// amount after a stoploss sale.
func (s *Service) StartAll(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}

	for _, exName := range s.accounts.Exchanges() {
		ex, err := s.exchanges.Get(exName)
		if err != nil {
			slog.Warn("skipping accounts of unknown exchange", "exchange", exName, "err", err)
			continue
		}
		for _, a := range s.accounts.GetAccounts(exName) {
			if err := s.scanAccount(ctx, ex, a); err != nil {
				if ctx.Err() != nil {
					return context.Cause(ctx)
				}
				slog.Warn("could not scan account holdings for protection (skipped)", "account", a, "err", err)
			}
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	var states []*gobs.PositionState
	begin, end := kvutil.PathRange(Keyspace)
	collect := func(ctx context.Context, _ kv.Reader, key string, v *gobs.PositionState) error {
		states = append(states, v)
		return nil
	}
	if err := kvutil.AscendDB(ctx, s.db, begin, end, collect); err != nil {
		return fmt.Errorf("could not load saved positions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, state := range states {
		key := Key{Exchange: state.Exchange, Account: state.Account, AltCoin: state.AltCoin}
		a, err := s.accounts.GetAccount(key.Exchange, key.Account)
		if err != nil {
			slog.Warn("dropping saved position of unknown account", "position", key, "err", err)
			continue
		}
		if a.StoplossPercent().IsZero() {
			slog.Info("dropping saved position of account with stoploss disabled", "position", key)
			continue
		}
		if _, err := s.addLocked(ctx, a, &Position{key: key, state: state}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) scanAccount(ctx context.Context, ex exchange.Exchange, a *account.Account) error {
	if a.StoplossPercent().IsZero() {
		return nil
	}
	balances, err := s.balances.All(ctx, a)
	if err != nil {
		return err
	}

	currencies := make([]string, 0, len(balances))
	for c := range balances {
		currencies = append(currencies, c)
	}
	slices.Sort(currencies)

	for _, c := range currencies {
		balance := balances[c]
		if !balance.IsPositive() || strings.EqualFold(c, a.MainCurrency()) {
			continue
		}
		bid, err := s.prices.Bid(ctx, ex.Name(), a.MainCurrency(), c)
		if err != nil {
			if errors.Is(err, accessor.ErrUnknownMarket) {
				continue
			}
			return err
		}
		value := bid.Mul(balance).Mul(d1.Sub(ex.TakerFee())).Mul(d100.Sub(a.StoplossPercent())).Div(d100)
		if value.LessThan(ex.MinimumOrderAmount()) {
			slog.Debug("holding is too small for protection", "account", a, "currency", c, "balance", balance, "value", value)
			continue
		}
		if _, err := s.AddProtection(ctx, Key{Exchange: a.Exchange(), Account: a.Name(), AltCoin: c}); err != nil {
			return err
		}
	}
	return nil
}

// PollAll checks every position once. Failure of one position doesn't
// affect the others. Triggered and invalid positions are removed.
func (s *Service) PollAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.positionMap))
	for k := range s.positionMap {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})

	for _, k := range keys {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		p := s.positionMap[k]
		triggered, err := p.poll(ctx, s)
		if err != nil {
			slog.Warn("removing invalid position", "position", p, "err", err)
			if _, rerr := s.removeLocked(ctx, k); rerr != nil {
				slog.Error("could not remove position", "position", p, "err", rerr)
			}
			if s.onInvalid != nil {
				s.onInvalid(p.state, err)
			}
			continue
		}
		if triggered {
			if _, err := s.removeLocked(ctx, k); err != nil {
				slog.Error("could not remove triggered position", "position", p, "err", err)
			}
			continue
		}
		if err := s.save(ctx, p); err != nil {
			slog.Warn("could not save position state (ignored)", "position", p, "err", err)
		}
	}
	return nil
}

// HandleEvent adds protection for bought holdings and drops protection for
// sold holdings.
func (s *Service) HandleEvent(ctx context.Context, e event.Event) {
	v, ok := e.(event.OrderPlaced)
	if !ok {
		return
	}
	key := Key{Exchange: v.Exchange, Account: v.Account, AltCoin: v.AltCoin}
	switch v.Side {
	case exchange.LimitBuy:
		if _, err := s.AddProtection(ctx, key); err != nil {
			slog.Warn("could not add protection for the bought holding", "position", key, "err", err)
		}
	case exchange.LimitSell:
		if _, err := s.RemoveProtection(ctx, key); err != nil {
			slog.Warn("could not remove protection for the sold holding", "position", key, "err", err)
		}
	}
}

// Get returns a snapshot of a position state.
func (s *Service) Get(key Key) (*gobs.PositionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positionMap[normalize(key)]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", key, os.ErrNotExist)
	}
	return gobs.Clone(p.state)
}

// Positions returns snapshots of all positions sorted by their keys.
func (s *Service) Positions() []*gobs.PositionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var states []*gobs.PositionState
	for _, p := range s.positionMap {
		v, err := gobs.Clone(p.state)
		if err != nil {
			slog.Error("could not clone position state", "position", p, "err", err)
			continue
		}
		states = append(states, v)
	}
	slices.SortFunc(states, func(a, b *gobs.PositionState) int {
		return strings.Compare(path.Join(a.Exchange, a.Account, a.AltCoin), path.Join(b.Exchange, b.Account, b.AltCoin))
	})
	return states
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.positionMap)
}
