// Copyright (c) 2023 BVK Chaitanya

package exchange

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderType int

const (
	Unsupported OrderType = iota
	LimitBuy
	LimitSell
)

func (v OrderType) String() string {
	switch v {
	case LimitBuy:
		return "LIMIT_BUY"
	case LimitSell:
		return "LIMIT_SELL"
	default:
		return "UNSUPPORTED"
	}
}

// ParseOrderType converts strings like "buy", "LIMIT_BUY", "sell" into the
// order type. Unknown strings are mapped to Unsupported.
func ParseOrderType(s string) OrderType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LIMIT_BUY":
		return LimitBuy
	case "SELL", "LIMIT_SELL":
		return LimitSell
	default:
		return Unsupported
	}
}

type Ticker struct {
	Market string

	Ask  decimal.Decimal
	Bid  decimal.Decimal
	Last decimal.Decimal
}

type HistoricalOrder struct {
	OrderID string

	MainCoin string
	AltCoin  string

	Type OrderType

	Quantity          decimal.Decimal
	QuantityRemaining decimal.Decimal

	Rate       decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal

	// Timestamp is in unix seconds.
	Timestamp int64
}

// Filled returns the executed quantity of the order.
func (v *HistoricalOrder) Filled() decimal.Decimal {
	return v.Quantity.Sub(v.QuantityRemaining)
}

type MarketOrder struct {
	Exchange string
	Account  string

	MainCoin string
	AltCoin  string

	Type OrderType

	Quantity decimal.Decimal
	Rate     decimal.Decimal

	ClientOrderID string
}

func (v *MarketOrder) String() string {
	return fmt.Sprintf("%s/%s:%s:%s-%s:%s@%s", v.Exchange, v.Account, v.Type, v.AltCoin, v.MainCoin, v.Quantity, v.Rate)
}

// Placeable returns true if the order has a supported type and non-zero
// quantity and rate.
func (v *MarketOrder) Placeable() bool {
	if v.Type != LimitBuy && v.Type != LimitSell {
		return false
	}
	return v.Quantity.IsPositive() && v.Rate.IsPositive()
}

func (v *MarketOrder) Clone() *MarketOrder {
	x := *v
	return &x
}
