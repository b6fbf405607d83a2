// Copyright (c) 2026 BVK Chaitanya

package stoploss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/gobs"
	"github.com/shopspring/decimal"
)

// MaxVerifyAttempts is the number of failed bought price estimations after
// which a position is dropped.
const MaxVerifyAttempts = 10

// ErrUnverifiable is returned when the bought price of a position could not
// be determined within MaxVerifyAttempts polls.
var ErrUnverifiable = errors.New("unverifiable position")

var (
	d1   = decimal.NewFromInt(1)
	d100 = decimal.NewFromInt(100)
)

// Key identifies a protected position.
type Key struct {
	Exchange string
	Account  string
	AltCoin  string
}

func (k Key) String() string {
	return path.Join(k.Exchange, k.Account, k.AltCoin)
}

// Position is a protected altcoin holding. Positions are either unverified
// (bought price is not known yet) or verified.
type Position struct {
	key Key

	state *gobs.PositionState
}

func newPosition(key Key, now time.Time) *Position {
	return &Position{
		key: key,
		state: &gobs.PositionState{
			Exchange:  key.Exchange,
			Account:   key.Account,
			AltCoin:   key.AltCoin,
			CreatedAt: now,
		},
	}
}

func (p *Position) String() string {
	return p.key.String()
}

func (p *Position) Key() Key {
	return p.key
}

func (p *Position) IsVerified() bool {
	return p.state.Verified
}

func (p *Position) ReferencePrice() decimal.Decimal {
	return p.state.ReferencePrice
}

func (p *Position) TSSLActivationPrice() decimal.Decimal {
	return p.state.TSSLActivationPrice
}

func (p *Position) BoughtPrice() decimal.Decimal {
	return p.state.BoughtPrice
}

func (p *Position) VerifyAttempts() int {
	return p.state.VerifyAttempts
}

// poll runs one step of the state machine. Triggered is true when position
// should no longer be protected. Exchange failures are logged and reported as
// not triggered so that the step is retried in the next poll.
func (p *Position) poll(ctx context.Context, s *Service) (triggered bool, err error) {
	a, err := s.accounts.GetAccount(p.key.Exchange, p.key.Account)
	if err != nil {
		return false, err
	}
	ex, err := s.exchanges.Get(p.key.Exchange)
	if err != nil {
		return false, err
	}

	p.state.LastChecked = s.now()
	if !p.state.Verified {
		triggered, err = p.verify(ctx, s, a, ex)
	} else {
		triggered, err = p.checkOrder(ctx, s, a, ex)
	}
	if err != nil {
		if errors.Is(err, ErrUnverifiable) {
			return false, err
		}
		slog.Warn("could not check the position (will retry)", "position", p, "verified", p.state.Verified, "err", err)
		return false, nil
	}
	return triggered, nil
}

func (p *Position) verify(ctx context.Context, s *Service, a *account.Account, ex exchange.Exchange) (bool, error) {
	balance, err := s.balances.Balance(ctx, a, p.key.AltCoin)
	if err != nil {
		return false, err
	}
	bought, err := s.estimator.Estimate(ctx, a, p.key.AltCoin, balance)
	if err != nil {
		return false, err
	}

	if bought.IsPositive() {
		// Trailing stoploss activates when the current value reaches a level
		// where selling at the trailing stoploss would still recover the cost.
		activation := bought.Mul(d1.Add(ex.TakerFee())).Div(d100.Sub(a.TrailingStoplossPercent())).Mul(d100)
		p.state.BoughtPrice = bought
		p.state.TSSLActivationPrice = activation
		p.state.ReferencePrice = activation
		p.state.Verified = true
		slog.Info("position is verified", "position", p, "balance", balance, "bought-price", bought, "tssl-activation-price", activation)
		return false, nil
	}

	p.state.VerifyAttempts++
	if p.state.VerifyAttempts >= MaxVerifyAttempts {
		return false, fmt.Errorf("position %s bought price is unknown after %d attempts: %w", p, p.state.VerifyAttempts, ErrUnverifiable)
	}
	slog.Info("could not determine bought price for the position (will retry)", "position", p, "balance", balance, "attempts", p.state.VerifyAttempts)
	return false, nil
}

func (p *Position) checkOrder(ctx context.Context, s *Service, a *account.Account, ex exchange.Exchange) (bool, error) {
	balance, err := s.balances.Balance(ctx, a, p.key.AltCoin)
	if err != nil {
		return false, err
	}
	if balance.IsZero() {
		slog.Info("position has zero balance; it was sold elsewhere", "position", p)
		return true, nil
	}

	bid, err := s.prices.Bid(ctx, p.key.Exchange, a.MainCurrency(), p.key.AltCoin)
	if err != nil {
		return false, err
	}
	if !bid.IsPositive() {
		slog.Warn("invalid bid price for the position (will retry)", "position", p, "bid", bid)
		return false, nil
	}

	current := bid.Mul(balance).Mul(d1.Sub(ex.TakerFee()))
	if current.GreaterThan(p.state.ReferencePrice) {
		p.state.ReferencePrice = current
	}

	var stoploss decimal.Decimal
	if current.LessThan(p.state.TSSLActivationPrice) {
		stoploss = p.state.BoughtPrice.Mul(d100.Sub(a.StoplossPercent())).Div(d100)
	} else {
		stoploss = p.state.ReferencePrice.Mul(d100.Sub(a.TrailingStoplossPercent())).Div(d100)
	}

	if !stoploss.GreaterThan(current) {
		return false, nil
	}

	sell := &exchange.MarketOrder{
		Exchange: p.key.Exchange,
		Account:  p.key.Account,
		MainCoin: a.MainCurrency(),
		AltCoin:  p.key.AltCoin,
		Type:     exchange.LimitSell,
		Quantity: balance,
		Rate:     bid,
	}
	slog.Info("stoploss is triggered for the position", "position", p, "current-value", current, "stoploss", stoploss, "reference-price", p.state.ReferencePrice, "sell", sell)
	s.queue.Enqueue(sell)
	return true, nil
}
