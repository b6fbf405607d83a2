// Copyright (c) 2026 BVK Chaitanya

package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bvk/sigbot/exchange"
	"github.com/shopspring/decimal"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	order := &exchange.MarketOrder{
		Exchange:      "bittrex",
		Account:       "main",
		MainCoin:      "BTC",
		AltCoin:       "ETH",
		Type:          exchange.LimitBuy,
		Quantity:      decimal.RequireFromString("0.33250208"),
		Rate:          decimal.RequireFromString("0.03"),
		ClientOrderID: "first",
	}
	if err := j.Record(ctx, NewEntry(order, Placed, "100", nil)); err != nil {
		t.Fatal(err)
	}
	order.ClientOrderID = "second"
	order.Type = exchange.LimitSell
	if err := j.Record(ctx, NewEntry(order, Failed, "", errors.New("insufficient funds"))); err != nil {
		t.Fatal(err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "second" || entries[0].Status != Failed || entries[0].Error != "insufficient funds" || entries[0].Side != exchange.LimitSell {
		t.Fatalf("unexpected newest entry %+v", entries[0])
	}
	if entries[1].ID != "first" || entries[1].OrderID != "100" || !entries[1].Quantity.Equal(order.Quantity) {
		t.Fatalf("unexpected oldest entry %+v", entries[1])
	}

	last, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0].ID != "second" {
		t.Fatalf("want only the newest entry, got %v", last)
	}
}
