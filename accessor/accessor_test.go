// Copyright (c) 2026 BVK Chaitanya

package accessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/exchange/exchangetest"
	"github.com/bvk/sigbot/ttlcache"
	"github.com/shopspring/decimal"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newAccount(t *testing.T, key string) *account.Account {
	a, err := account.New(&account.Config{Exchange: "fake", Name: key, MainCurrency: "BTC"}, &exchange.Credentials{Key: key, Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestPrices(t *testing.T) {
	ctx := context.Background()
	fake := exchangetest.New("fake")
	fake.SetTicker("BTC", "ETH", 0.051, 0.050)
	reg := exchange.NewRegistry(fake)

	clock := &testClock{now: time.Unix(1700000000, 0)}
	prices := NewPrices(reg, func() time.Duration { return time.Minute }, &ttlcache.Options{Now: clock.Now})

	ask, err := prices.Ask(ctx, "fake", "BTC", "ETH")
	if err != nil {
		t.Fatal(err)
	}
	bid, err := prices.Bid(ctx, "fake", "BTC", "ETH")
	if err != nil {
		t.Fatal(err)
	}
	if !ask.Equal(decimal.NewFromFloat(0.051)) || !bid.Equal(decimal.NewFromFloat(0.050)) {
		t.Fatalf("unexpected ask %s and bid %s", ask, bid)
	}
	if fake.NumTickerCalls != 1 {
		t.Fatalf("want one ticker fetch within ttl, got %d", fake.NumTickerCalls)
	}

	if _, err := prices.Ask(ctx, "fake", "BTC", "XYZ"); !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("want ErrUnknownMarket, got %v", err)
	}
	if _, err := prices.Ask(ctx, "nosuch", "BTC", "ETH"); !errors.Is(err, exchange.ErrUnknownExchange) {
		t.Fatalf("want ErrUnknownExchange, got %v", err)
	}

	// Refresh replaces the whole mapping.
	fake.SetTicker("BTC", "LTC", 0.002, 0.001)
	if _, err := prices.Ask(ctx, "fake", "BTC", "LTC"); !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("new market must not be visible before ttl expires, got %v", err)
	}
	clock.now = clock.now.Add(time.Minute)
	if _, err := prices.Ask(ctx, "fake", "BTC", "LTC"); err != nil {
		t.Fatalf("new market must be visible after refresh: %v", err)
	}
	if fake.NumTickerCalls != 2 {
		t.Fatalf("want two ticker fetches, got %d", fake.NumTickerCalls)
	}
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	fake := exchangetest.New("fake")
	reg := exchange.NewRegistry(fake)
	a := newAccount(t, "a")
	fake.SetBalance("a", "ETH", 2)

	ttl := time.Minute
	balances := NewBalances(reg, func() time.Duration { return ttl }, nil)

	v, err := balances.Balance(ctx, a, "ETH")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("want 2 ETH, got %s", v)
	}

	v, err = balances.Balance(ctx, a, "DOGE")
	if err != nil {
		t.Fatalf("unknown currency must not be an error: %v", err)
	}
	if !v.IsZero() {
		t.Fatalf("want zero for unknown currency, got %s", v)
	}
	if fake.NumBalanceCalls != 1 {
		t.Fatalf("want one balance fetch within ttl, got %d", fake.NumBalanceCalls)
	}

	// Ttl changes apply on the next access.
	ttl = 0
	if _, err := balances.All(ctx, a); err != nil {
		t.Fatal(err)
	}
	if fake.NumBalanceCalls != 2 {
		t.Fatalf("want a refresh after ttl change, got %d calls", fake.NumBalanceCalls)
	}

	fake.FailKeys["a"] = exchange.ErrExchange
	if _, err := balances.Balance(ctx, a, "ETH"); !errors.Is(err, exchange.ErrExchange) {
		t.Fatalf("want exchange error, got %v", err)
	}
}

func TestHistoriesAreSortedOldestFirst(t *testing.T) {
	ctx := context.Background()
	fake := exchangetest.New("fake")
	reg := exchange.NewRegistry(fake)
	a := newAccount(t, "a")

	fake.AddHistory("a",
		&exchange.HistoricalOrder{OrderID: "3", Timestamp: 300},
		&exchange.HistoricalOrder{OrderID: "1", Timestamp: 100},
		&exchange.HistoricalOrder{OrderID: "2a", Timestamp: 200},
		&exchange.HistoricalOrder{OrderID: "2b", Timestamp: 200},
	)

	histories := NewHistories(reg, func() time.Duration { return time.Hour }, nil)
	orders, err := histories.History(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	want := []string{"1", "2a", "2b", "3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("want %v, got %v", want, ids)
		}
	}

	if _, err := histories.History(ctx, a); err != nil {
		t.Fatal(err)
	}
	if fake.NumHistoryCalls != 1 {
		t.Fatalf("want one history fetch within ttl, got %d", fake.NumHistoryCalls)
	}
}
