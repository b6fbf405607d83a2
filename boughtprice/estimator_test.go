// Copyright (c) 2026 BVK Chaitanya

package boughtprice

import (
	"context"
	"testing"
	"time"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/exchange/exchangetest"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy(id, main, alt, quantity, rate string, ts int64) *exchange.HistoricalOrder {
	return &exchange.HistoricalOrder{
		OrderID:   id,
		MainCoin:  main,
		AltCoin:   alt,
		Type:      exchange.LimitBuy,
		Quantity:  d(quantity),
		Rate:      d(rate),
		Price:     d(quantity).Mul(d(rate)),
		Timestamp: ts,
	}
}

func TestEstimate(t *testing.T) {
	orders := []*exchange.HistoricalOrder{
		buy("1", "BTC", "ETH", "2", "0.01", 100),
		buy("2", "USDT", "ETH", "5", "100", 150),
		{OrderID: "3", MainCoin: "BTC", AltCoin: "ETH", Type: exchange.LimitSell, Quantity: d("1"), Rate: d("0.02"), Timestamp: 175},
		buy("4", "BTC", "ETH", "3", "0.02", 200),
		buy("5", "BTC", "LTC", "9", "0.001", 250),
	}

	tests := []struct {
		balance string
		fee     string
		want    string
	}{
		{"1", "0", "0.01"},
		{"2", "0", "0.02"},
		{"3", "0", "0.04"},
		{"5", "0", "0.08"},
		{"5", "0.01", "0.0808"},
		{"6", "0", "0"},
		{"0", "0", "0"},
	}
	for i, test := range tests {
		got := Estimate(orders, "BTC", "ETH", d(test.balance), d(test.fee))
		if !got.Equal(d(test.want)) {
			t.Errorf("test %d: balance %s: want %s, got %s", i, test.balance, test.want, got)
		}
	}
}

func TestEstimatePartialFills(t *testing.T) {
	partial := buy("1", "BTC", "ETH", "4", "0.01", 100)
	partial.QuantityRemaining = d("3")
	orders := []*exchange.HistoricalOrder{
		partial,
		buy("2", "BTC", "ETH", "1", "0.03", 200),
	}
	// Only one unit was filled in the first order.
	got := Estimate(orders, "BTC", "ETH", d("2"), decimal.Zero)
	if !got.Equal(d("0.04")) {
		t.Fatalf("want 0.04, got %s", got)
	}
	if got := Estimate(orders, "BTC", "ETH", d("3"), decimal.Zero); !got.IsZero() {
		t.Fatalf("want zero when filled quantities do not cover the balance, got %s", got)
	}
}

func TestEstimatorUsesHistory(t *testing.T) {
	ctx := context.Background()
	fake := exchangetest.New("fake")
	fake.SetFees(0.0025, 0.0025)
	// Exchange returns newest first; estimator must match oldest first.
	fake.AddHistory("k",
		buy("2", "BTC", "ETH", "1", "0.03", 200),
		buy("1", "BTC", "ETH", "1", "0.01", 100),
	)
	reg := exchange.NewRegistry(fake)

	a, err := account.New(&account.Config{Exchange: "fake", Name: "main", MainCurrency: "BTC"}, &exchange.Credentials{Key: "k", Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	histories := accessor.NewHistories(reg, func() time.Duration { return time.Minute }, nil)
	e := New(reg, histories)

	got, err := e.Estimate(ctx, a, "ETH", d("1"))
	if err != nil {
		t.Fatal(err)
	}
	if want := d("0.01").Mul(d("1.0025")); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
}
