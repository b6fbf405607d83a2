// Copyright (c) 2026 BVK Chaitanya

package stoploss

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/boughtprice"
	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/exchange/exchangetest"
	"github.com/bvk/sigbot/gobs"
	"github.com/bvk/sigbot/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

type testQueue struct {
	mu     sync.Mutex
	orders []*exchange.MarketOrder
}

func (q *testQueue) Enqueue(order *exchange.MarketOrder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.orders = append(q.orders, order)
}

func (q *testQueue) Orders() []*exchange.MarketOrder {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.orders
}

type testSetup struct {
	fake  *exchangetest.Fake
	queue *testQueue
	db    kv.Database
	svc   *Service
}

func newSetup(t *testing.T, stoploss, trailing string) *testSetup {
	return newAccountsSetup(t, stoploss, trailing, "main")
}

// newAccountsSetup creates one account per name on a single fake exchange.
// Every account uses its name as the api key.
func newAccountsSetup(t *testing.T, stoploss, trailing string, names ...string) *testSetup {
	fake := exchangetest.New("fake")
	var accs []*account.Account
	for _, name := range names {
		a, err := account.New(&account.Config{
			Exchange:                "fake",
			Name:                    name,
			MainCurrency:            "BTC",
			BuyLimit:                "1",
			StoplossPercent:         stoploss,
			TrailingStoplossPercent: trailing,
		}, &exchange.Credentials{Key: name, Secret: "s"})
		if err != nil {
			t.Fatal(err)
		}
		accs = append(accs, a)
	}
	accounts, err := account.NewRegistry(accs...)
	if err != nil {
		t.Fatal(err)
	}

	reg := exchange.NewRegistry(fake)
	ttl := func() time.Duration { return 0 }
	histories := accessor.NewHistories(reg, ttl, nil)
	queue := new(testQueue)
	db := kvmemdb.New()
	svc := New(db, &Components{
		Accounts:  accounts,
		Exchanges: reg,
		Prices:    accessor.NewPrices(reg, ttl, nil),
		Balances:  accessor.NewBalances(reg, ttl, nil),
		Estimator: boughtprice.New(reg, histories),
		Queue:     queue,
	}, nil)
	return &testSetup{fake: fake, queue: queue, db: db, svc: svc}
}

func (ts *testSetup) buyHistory(quantity, rate string) {
	ts.fake.AddHistory("main", &exchange.HistoricalOrder{
		OrderID:   "1",
		MainCoin:  "BTC",
		AltCoin:   "ETH",
		Type:      exchange.LimitBuy,
		Quantity:  decimal.RequireFromString(quantity),
		Rate:      decimal.RequireFromString(rate),
		Timestamp: 100,
	})
}

var ethKey = Key{Exchange: "fake", Account: "main", AltCoin: "ETH"}

// pollBids polls all positions once for every bid price and returns the
// number of polls completed before the position was removed.
func (ts *testSetup) pollBids(t *testing.T, bids ...float64) int {
	ctx := context.Background()
	for i, bid := range bids {
		ts.fake.SetTicker("BTC", "ETH", bid+0.01, bid)
		if err := ts.svc.PollAll(ctx); err != nil {
			t.Fatal(err)
		}
		if ts.svc.Len() == 0 {
			return i + 1
		}
	}
	return len(bids)
}

func TestStoploss(t *testing.T) {
	ts := newSetup(t, "10", "0")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	if ok, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil || !ok {
		t.Fatalf("want new protection, got %t, %v", ok, err)
	}
	if n := ts.pollBids(t, 1.0, 0.89); n != 2 {
		t.Fatalf("want trigger on the second poll, got %d", n)
	}

	orders := ts.queue.Orders()
	if len(orders) != 1 {
		t.Fatalf("want one sell order, got %d", len(orders))
	}
	sell := orders[0]
	if sell.Type != exchange.LimitSell || !sell.Quantity.Equal(decimal.NewFromInt(1)) || !sell.Rate.Equal(decimal.RequireFromString("0.89")) {
		t.Fatalf("unexpected sell order %s", sell)
	}
	if sell.Exchange != "fake" || sell.Account != "main" || sell.MainCoin != "BTC" || sell.AltCoin != "ETH" {
		t.Fatalf("unexpected sell order market %s", sell)
	}
}

func TestNoTriggerAboveStoploss(t *testing.T) {
	ts := newSetup(t, "10", "0")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	if _, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil {
		t.Fatal(err)
	}
	if n := ts.pollBids(t, 1.0, 0.95, 0.91, 0.90); n != 4 || ts.svc.Len() != 1 {
		t.Fatalf("want no trigger, got %d polls and %d positions", n, ts.svc.Len())
	}
	if len(ts.queue.Orders()) != 0 {
		t.Fatalf("want no sell orders")
	}
}

func TestTrailingStoploss(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	if _, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil {
		t.Fatal(err)
	}
	if n := ts.pollBids(t, 1.0, 1.0, 2.0); n != 3 || ts.svc.Len() != 1 {
		t.Fatalf("want no trigger while price rises, got %d polls", n)
	}
	state, err := ts.svc.Get(ethKey)
	if err != nil {
		t.Fatal(err)
	}
	if !state.ReferencePrice.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("want reference price 2, got %s", state.ReferencePrice)
	}

	if n := ts.pollBids(t, 1.80); n != 1 || ts.svc.Len() != 0 {
		t.Fatalf("want trigger at 1.80")
	}
	orders := ts.queue.Orders()
	if len(orders) != 1 || !orders[0].Rate.Equal(decimal.RequireFromString("1.8")) {
		t.Fatalf("want one sell order at 1.8, got %v", orders)
	}
}

func TestReferencePriceIsMonotonic(t *testing.T) {
	ts := newSetup(t, "50", "40")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	if _, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil {
		t.Fatal(err)
	}
	ts.pollBids(t, 1.0) // verify

	last := decimal.Zero
	for _, bid := range []float64{1.5, 3.0, 2.5, 2.0, 3.5, 2.2} {
		ts.pollBids(t, bid)
		state, err := ts.svc.Get(ethKey)
		if err != nil {
			t.Fatalf("bid %v: %v", bid, err)
		}
		if state.ReferencePrice.LessThan(last) {
			t.Fatalf("reference price decreased from %s to %s", last, state.ReferencePrice)
		}
		last = state.ReferencePrice
	}
	if !last.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("want reference price 3.5, got %s", last)
	}
}

func TestUnverifiableIsRemoved(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.fake.SetTicker("BTC", "ETH", 1.0, 1.0)

	if _, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < MaxVerifyAttempts; i++ {
		if err := ts.svc.PollAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		state, err := ts.svc.Get(ethKey)
		if err != nil {
			t.Fatalf("position removed after %d attempts", i)
		}
		if state.VerifyAttempts != i {
			t.Fatalf("want %d attempts, got %d", i, state.VerifyAttempts)
		}
	}
	if err := ts.svc.PollAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.svc.Get(ethKey); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want position removed at attempt %d, got %v", MaxVerifyAttempts, err)
	}
	if len(ts.queue.Orders()) != 0 {
		t.Fatalf("unverified position must not sell")
	}
}

func TestZeroBalanceRemoves(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	if _, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil {
		t.Fatal(err)
	}
	ts.pollBids(t, 1.0)
	ts.fake.SetBalance("main", "ETH", 0)
	if n := ts.pollBids(t, 1.0); n != 1 || ts.svc.Len() != 0 {
		t.Fatalf("want position removed when sold elsewhere")
	}
	if len(ts.queue.Orders()) != 0 {
		t.Fatalf("want no sell order for zero balance")
	}
}

func TestUniqueness(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ctx := context.Background()

	if ok, err := ts.svc.AddProtection(ctx, ethKey); err != nil || !ok {
		t.Fatalf("want added, got %t, %v", ok, err)
	}
	if ok, err := ts.svc.AddProtection(ctx, Key{Exchange: "FAKE", Account: "main", AltCoin: "eth"}); err != nil || ok {
		t.Fatalf("want duplicate to be ignored, got %t, %v", ok, err)
	}
	if n := ts.svc.Len(); n != 1 {
		t.Fatalf("want one position, got %d", n)
	}
}

func TestDisabledStoploss(t *testing.T) {
	ts := newSetup(t, "0", "0")
	if ok, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil || ok {
		t.Fatalf("want no protection when stoploss is disabled, got %t, %v", ok, err)
	}
}

func TestUnknownAccount(t *testing.T) {
	ts := newSetup(t, "10", "5")
	key := Key{Exchange: "fake", Account: "other", AltCoin: "ETH"}
	if _, err := ts.svc.AddProtection(context.Background(), key); !errors.Is(err, account.ErrUnknownAccount) {
		t.Fatalf("want ErrUnknownAccount, got %v", err)
	}
}

func TestTransientFailureKeepsPosition(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	if _, err := ts.svc.AddProtection(context.Background(), ethKey); err != nil {
		t.Fatal(err)
	}
	ts.pollBids(t, 1.0)

	ts.fake.Err = exchange.ErrExchange
	if err := ts.svc.PollAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ts.svc.Len() != 1 {
		t.Fatalf("transient failures must not remove positions")
	}
}

func TestFailureIsolation(t *testing.T) {
	ts := newSetup(t, "10", "0")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.fake.SetBalance("main", "LTC", 1)
	ts.buyHistory("1", "1.0")
	ts.fake.SetTicker("BTC", "LTC", 1.0, 1.0)

	ctx := context.Background()
	if _, err := ts.svc.AddProtection(ctx, Key{Exchange: "fake", Account: "main", AltCoin: "LTC"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.svc.AddProtection(ctx, ethKey); err != nil {
		t.Fatal(err)
	}

	// LTC has no buy history and is never verified; ETH must still trigger.
	ts.pollBids(t, 1.0, 0.5)
	if _, err := ts.svc.Get(ethKey); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want ETH position triggered, got %v", err)
	}
	if len(ts.queue.Orders()) != 1 {
		t.Fatalf("want one sell order")
	}
	if _, err := ts.svc.Get(Key{Exchange: "fake", Account: "main", AltCoin: "LTC"}); err != nil {
		t.Fatalf("want LTC position to be kept, got %v", err)
	}
}

func TestExchangeFailureIsolation(t *testing.T) {
	ts := newAccountsSetup(t, "10", "0", "a", "b")
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		ts.fake.SetBalance(name, "ETH", 1)
		ts.fake.AddHistory(name, &exchange.HistoricalOrder{
			OrderID:   name,
			MainCoin:  "BTC",
			AltCoin:   "ETH",
			Type:      exchange.LimitBuy,
			Quantity:  decimal.NewFromInt(1),
			Rate:      decimal.NewFromInt(1),
			Timestamp: 100,
		})
		if _, err := ts.svc.AddProtection(ctx, Key{Exchange: "fake", Account: name, AltCoin: "ETH"}); err != nil {
			t.Fatal(err)
		}
	}
	ts.pollBids(t, 1.0)

	// Account calls of a fail while the price drops below both stoplosses.
	ts.fake.FailKeys["a"] = exchange.ErrExchange
	ts.pollBids(t, 0.5)

	if _, err := ts.svc.Get(Key{Exchange: "fake", Account: "a", AltCoin: "ETH"}); err != nil {
		t.Fatalf("want position of the failing account kept, got %v", err)
	}
	if _, err := ts.svc.Get(Key{Exchange: "fake", Account: "b", AltCoin: "ETH"}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want position of the healthy account triggered, got %v", err)
	}
	orders := ts.queue.Orders()
	if len(orders) != 1 || orders[0].Account != "b" {
		t.Fatalf("want one sell order for account b, got %v", orders)
	}
}

func TestStartAllSkipsFailingAccount(t *testing.T) {
	ts := newAccountsSetup(t, "10", "5", "a", "b")
	for _, name := range []string{"a", "b"} {
		ts.fake.SetBalance(name, "ETH", 1)
	}
	ts.fake.SetTicker("BTC", "ETH", 1.0, 1.0)
	ts.fake.FailKeys["a"] = exchange.ErrExchange

	if err := ts.svc.StartAll(context.Background()); err != nil {
		t.Fatalf("want failures of one account ignored, got %v", err)
	}
	states := ts.svc.Positions()
	if len(states) != 1 || states[0].Account != "b" {
		t.Fatalf("want only account b protected, got %v", states)
	}
}

func TestStartAllDropsDisabledStoploss(t *testing.T) {
	ts := newSetup(t, "0", "0")
	ctx := context.Background()
	saved := &gobs.PositionState{Exchange: "fake", Account: "main", AltCoin: "ETH", Verified: true}
	if err := kvutil.SetDB(ctx, ts.db, dbKey(ethKey), saved); err != nil {
		t.Fatal(err)
	}
	ts.fake.SetBalance("main", "ETH", 1)
	ts.fake.SetTicker("BTC", "ETH", 1.0, 1.0)

	if err := ts.svc.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n := ts.svc.Len(); n != 0 {
		t.Fatalf("want no positions restored when stoploss is disabled, got %d", n)
	}
	ts.pollBids(t, 0.1)
	if len(ts.queue.Orders()) != 0 {
		t.Fatalf("want no sell orders when stoploss is disabled")
	}
}

func TestHandleEvent(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ctx := context.Background()

	ts.svc.HandleEvent(ctx, event.OrderPlaced{Exchange: "fake", Account: "main", AltCoin: "ETH", Side: exchange.LimitBuy})
	if ts.svc.Len() != 1 {
		t.Fatalf("want protection after buy")
	}
	ts.svc.HandleEvent(ctx, event.ReplaceFlagChanged{Enabled: true})
	if ts.svc.Len() != 1 {
		t.Fatalf("unrelated events must be ignored")
	}
	ts.svc.HandleEvent(ctx, event.OrderPlaced{Exchange: "fake", Account: "main", AltCoin: "ETH", Side: exchange.LimitSell})
	if ts.svc.Len() != 0 {
		t.Fatalf("want no protection after sell")
	}
}

func TestStartAll(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ts.fake.SetMinimumOrderAmount(0.5)
	ts.fake.SetBalance("main", "BTC", 10)
	ts.fake.SetBalance("main", "ETH", 1)
	ts.fake.SetBalance("main", "LTC", 1)
	ts.fake.SetTicker("BTC", "ETH", 1.0, 1.0)
	ts.fake.SetTicker("BTC", "LTC", 0.1, 0.1)

	ctx := context.Background()
	saved := &gobs.PositionState{Exchange: "fake", Account: "main", AltCoin: "XRP", Verified: true}
	if err := kvutil.SetDB(ctx, ts.db, dbKey(Key{Exchange: "fake", Account: "main", AltCoin: "XRP"}), saved); err != nil {
		t.Fatal(err)
	}

	if err := ts.svc.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	states := ts.svc.Positions()
	if len(states) != 2 {
		t.Fatalf("want two positions, got %d", len(states))
	}
	if states[0].AltCoin != "ETH" || states[1].AltCoin != "XRP" || !states[1].Verified {
		t.Fatalf("unexpected positions %v %v", states[0], states[1])
	}
}

func TestPositionsArePersisted(t *testing.T) {
	ts := newSetup(t, "10", "5")
	ts.fake.SetBalance("main", "ETH", 1)
	ts.buyHistory("1", "1.0")

	ctx := context.Background()
	if _, err := ts.svc.AddProtection(ctx, ethKey); err != nil {
		t.Fatal(err)
	}
	ts.pollBids(t, 1.0)

	saved, err := kvutil.GetDB[gobs.PositionState](ctx, ts.db, dbKey(ethKey))
	if err != nil {
		t.Fatal(err)
	}
	if !saved.Verified || !saved.BoughtPrice.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want verified position saved, got %+v", saved)
	}

	if _, err := ts.svc.RemoveProtection(ctx, ethKey); err != nil {
		t.Fatal(err)
	}
	if _, err := kvutil.GetDB[gobs.PositionState](ctx, ts.db, dbKey(ethKey)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want saved position deleted, got %v", err)
	}
}
