// Copyright (c) 2026 BVK Chaitanya

package orderbuilder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/exchange/exchangetest"
	"github.com/shopspring/decimal"
)

func newBuilder(t *testing.T, fake *exchangetest.Fake, buyLimit string) *Builder {
	a, err := account.New(&account.Config{
		Exchange:     fake.Name(),
		Name:         "main",
		MainCurrency: "BTC",
		BuyLimit:     buyLimit,
	}, &exchange.Credentials{Key: "main", Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	accounts, err := account.NewRegistry(a)
	if err != nil {
		t.Fatal(err)
	}
	reg := exchange.NewRegistry(fake)
	ttl := func() time.Duration { return 0 }
	return New(reg, accounts, accessor.NewPrices(reg, ttl, nil), accessor.NewBalances(reg, ttl, nil))
}

func skeleton(side exchange.OrderType) *exchange.MarketOrder {
	return &exchange.MarketOrder{
		Exchange: "fake",
		Account:  "main",
		MainCoin: "BTC",
		AltCoin:  "ETH",
		Type:     side,
	}
}

func TestBuy(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 1.0, 0.9)
	fake.SetMinimumOrderAmount(1.0)
	fake.SetBalance("main", "ETH", 0)
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.LimitBuy)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if !order.Rate.Equal(decimal.NewFromInt(1)) || !order.Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want rate=1 quantity=1, got rate=%s quantity=%s", order.Rate, order.Quantity)
	}
	if !order.Placeable() {
		t.Fatalf("sized buy order must be placeable")
	}
}

func TestBuyWithFee(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 0.03, 0.029)
	fake.SetFees(0.0025, 0.0025)
	fake.SetMinimumOrderAmount(0.0005)
	b := newBuilder(t, fake, "0.01")

	order := skeleton(exchange.LimitBuy)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	// 0.01 / 1.0025 / 0.03 = 0.33250207...
	want := decimal.RequireFromString("0.33250208")
	if !order.Quantity.Equal(want) {
		t.Fatalf("want quantity %s, got %s", want, order.Quantity)
	}
	if order.Quantity.Exponent() < -8 {
		t.Fatalf("quantity must be rounded to 8 decimals, got %s", order.Quantity)
	}
}

func TestBuySkippedWhenHoldingEnough(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 1.0, 0.9)
	fake.SetMinimumOrderAmount(1.0)
	fake.SetBalance("main", "ETH", 5)
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.LimitBuy)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if !order.Quantity.IsZero() || order.Placeable() {
		t.Fatalf("want zero quantity when holding enough, got %s", order.Quantity)
	}
}

func TestSell(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 1.1, 1.0)
	fake.SetBalance("main", "ETH", 1.0)
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.LimitSell)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if !order.Rate.Equal(decimal.NewFromInt(1)) || !order.Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want rate=1 quantity=1, got rate=%s quantity=%s", order.Rate, order.Quantity)
	}
}

func TestSellWithoutBalance(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 1.1, 1.0)
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.LimitSell)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if !order.Quantity.IsZero() || order.Placeable() {
		t.Fatalf("want zero quantity without balance, got %s", order.Quantity)
	}
}

func TestUnsupported(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 1.0, 1.0)
	fake.SetBalance("main", "ETH", 1.0)
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.Unsupported)
	order.Rate = decimal.NewFromInt(5)
	order.Quantity = decimal.NewFromInt(5)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if !order.Rate.IsZero() || !order.Quantity.IsZero() {
		t.Fatalf("want zero rate and quantity, got rate=%s quantity=%s", order.Rate, order.Quantity)
	}
	if fake.NumTickerCalls != 0 {
		t.Fatalf("unsupported orders must not fetch prices")
	}
}

func TestUnsupportedForUnknownAccount(t *testing.T) {
	fake := exchangetest.New("fake")
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.Unsupported)
	order.Exchange = "unknown"
	order.Account = "other"
	order.Quantity = decimal.NewFromInt(5)
	if err := b.Build(context.Background(), order); err != nil {
		t.Fatalf("want unsupported order ignored quietly, got %v", err)
	}
	if !order.Rate.IsZero() || !order.Quantity.IsZero() {
		t.Fatalf("want zero rate and quantity, got rate=%s quantity=%s", order.Rate, order.Quantity)
	}
	if err := b.BuildWithLimit(context.Background(), order, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("want unsupported order ignored quietly, got %v", err)
	}
}

func TestUnknownAccount(t *testing.T) {
	fake := exchangetest.New("fake")
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.LimitBuy)
	order.Account = "other"
	if err := b.Build(context.Background(), order); !errors.Is(err, account.ErrUnknownAccount) {
		t.Fatalf("want ErrUnknownAccount, got %v", err)
	}
}

func TestExchangeFailure(t *testing.T) {
	fake := exchangetest.New("fake")
	fake.Err = exchange.ErrExchange
	b := newBuilder(t, fake, "1.0")

	order := skeleton(exchange.LimitBuy)
	if err := b.Build(context.Background(), order); !errors.Is(err, exchange.ErrExchange) {
		t.Fatalf("want ErrExchange, got %v", err)
	}
	if order.Placeable() {
		t.Fatalf("failed order must not be placeable")
	}
}
