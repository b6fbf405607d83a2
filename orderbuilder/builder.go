// Copyright (c) 2026 BVK Chaitanya

package orderbuilder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/shopspring/decimal"
)

// Builder computes the rate and quantity for signal generated orders.
type Builder struct {
	exchanges accessor.ExchangeGetter
	accounts  *account.Registry

	prices   *accessor.Prices
	balances *accessor.Balances
}

func New(exchanges accessor.ExchangeGetter, accounts *account.Registry, prices *accessor.Prices, balances *accessor.Balances) *Builder {
	return &Builder{
		exchanges: exchanges,
		accounts:  accounts,
		prices:    prices,
		balances:  balances,
	}
}

// Build fills in the rate and quantity of an order skeleton using the
// account's buy limit.
func (b *Builder) Build(ctx context.Context, order *exchange.MarketOrder) error {
	if !isSupported(order.Type) {
		return b.BuildWithLimit(ctx, order, decimal.Zero)
	}
	a, err := b.accounts.GetAccount(order.Exchange, order.Account)
	if err != nil {
		return err
	}
	return b.BuildWithLimit(ctx, order, a.BuyLimit())
}

// BuildWithLimit fills in the rate and quantity of an order skeleton.
//
// Buy orders are sized so that the total cost including the taker fee is
// close to the buy limit, but only when the current holding is worth less
// than the exchange's minimum order amount. Sell orders sell the entire
// balance. Orders with unsupported types are left with zero rate and
// quantity.
func (b *Builder) BuildWithLimit(ctx context.Context, order *exchange.MarketOrder, buyLimit decimal.Decimal) error {
	order.Rate, order.Quantity = decimal.Zero, decimal.Zero
	if !isSupported(order.Type) {
		slog.Warn("order type is not supported (ignored)", "order", order)
		return nil
	}

	ex, err := b.exchanges.Get(order.Exchange)
	if err != nil {
		return err
	}
	a, err := b.accounts.GetAccount(order.Exchange, order.Account)
	if err != nil {
		return err
	}

	switch order.Type {
	case exchange.LimitBuy:
		rate, err := b.prices.Ask(ctx, order.Exchange, order.MainCoin, order.AltCoin)
		if err != nil {
			return fmt.Errorf("could not fetch ask price for %s: %w", order, err)
		}
		order.Rate = rate
	case exchange.LimitSell:
		rate, err := b.prices.Bid(ctx, order.Exchange, order.MainCoin, order.AltCoin)
		if err != nil {
			return fmt.Errorf("could not fetch bid price for %s: %w", order, err)
		}
		order.Rate = rate
	}
	if !order.Rate.IsPositive() {
		return nil
	}

	balance, err := b.balances.Balance(ctx, a, order.AltCoin)
	if err != nil {
		return fmt.Errorf("could not fetch %s balance: %w", order.AltCoin, err)
	}

	switch order.Type {
	case exchange.LimitBuy:
		value := order.Rate.Mul(balance)
		if value.LessThan(ex.MinimumOrderAmount()) {
			perFee := buyLimit.Div(decimal.NewFromInt(1).Add(ex.TakerFee()))
			order.Quantity = perFee.Div(order.Rate).Round(8)
		} else {
			slog.Info("account already holds enough to skip the buy", "order", order, "balance", balance, "value", value)
		}
	case exchange.LimitSell:
		if balance.IsPositive() {
			order.Quantity = balance
		}
	}
	return nil
}

func isSupported(t exchange.OrderType) bool {
	return t == exchange.LimitBuy || t == exchange.LimitSell
}
