// Copyright (c) 2026 BVK Chaitanya

// Package boughtprice estimates the cost basis of an altcoin balance from the
// account's order history.
package boughtprice

import (
	"context"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/shopspring/decimal"
)

type Estimator struct {
	exchanges accessor.ExchangeGetter
	histories *accessor.Histories
}

func New(exchanges accessor.ExchangeGetter, histories *accessor.Histories) *Estimator {
	return &Estimator{
		exchanges: exchanges,
		histories: histories,
	}
}

// Estimate returns the total cost, including the taker fee, of acquiring the
// given balance of the alt-coin. Buy orders are matched oldest first.
//
// Returns zero when the order history doesn't account for the whole balance.
func (e *Estimator) Estimate(ctx context.Context, a *account.Account, altCoin string, balance decimal.Decimal) (decimal.Decimal, error) {
	ex, err := e.exchanges.Get(a.Exchange())
	if err != nil {
		return decimal.Zero, err
	}
	orders, err := e.histories.History(ctx, a)
	if err != nil {
		return decimal.Zero, err
	}
	return Estimate(orders, a.MainCurrency(), altCoin, balance, ex.TakerFee()), nil
}

// Estimate computes the bought price of a balance from a sorted list of
// historical orders.
func Estimate(orders []*exchange.HistoricalOrder, mainCoin, altCoin string, balance, takerFee decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}

	feeMultiplier := decimal.NewFromInt(1).Add(takerFee)
	remaining := balance
	var sum decimal.Decimal
	for _, order := range orders {
		if order.Type != exchange.LimitBuy || order.MainCoin != mainCoin || order.AltCoin != altCoin {
			continue
		}
		filled := order.Filled()
		if !filled.IsPositive() {
			continue
		}
		consumed := decimal.Min(remaining, filled)
		sum = sum.Add(consumed.Mul(order.Rate).Mul(feeMultiplier))
		remaining = remaining.Sub(consumed)
		if !remaining.IsPositive() {
			return sum
		}
	}
	return decimal.Zero
}
