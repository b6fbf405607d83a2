// Copyright (c) 2026 BVK Chaitanya

package event

import (
	"testing"
	"time"

	"github.com/bvk/sigbot/exchange"
)

func TestHandlersInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []string
	bus.Handle(func(e Event) { got = append(got, "first:"+e.String()) })
	bus.Handle(func(e Event) { got = append(got, "second:"+e.String()) })

	bus.Publish(ReplaceFlagChanged{Enabled: true})
	if len(got) != 2 {
		t.Fatalf("want 2 handler calls, got %d", len(got))
	}
	if got[0] != "first:replace-flag-changed:true" || got[1] != "second:replace-flag-changed:true" {
		t.Fatalf("unexpected handler calls %v", got)
	}
}

func TestTypeSwitch(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var placed []OrderPlaced
	var expirations []ExpirationChanged
	bus.Handle(func(e Event) {
		switch v := e.(type) {
		case OrderPlaced:
			placed = append(placed, v)
		case ExpirationChanged:
			expirations = append(expirations, v)
		}
	})

	bus.Publish(OrderPlaced{Exchange: "bittrex", Account: "main", AltCoin: "ETH", Side: exchange.LimitBuy})
	bus.Publish(ExpirationChanged{Name: "ticker-ttl", Value: time.Minute})
	bus.Publish(ReplaceFlagChanged{})

	if len(placed) != 1 || placed[0].Side != exchange.LimitBuy {
		t.Fatalf("unexpected order placed events %v", placed)
	}
	if len(expirations) != 1 || expirations[0].Value != time.Minute {
		t.Fatalf("unexpected expiration events %v", expirations)
	}
}

func TestSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	r, err := bus.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	bus.Publish(ExpirationChanged{Name: "stoploss-poll-interval", Value: time.Second})

	e, err := r.Receive()
	if err != nil {
		t.Fatal(err)
	}
	v, ok := e.(ExpirationChanged)
	if !ok || v.Name != "stoploss-poll-interval" {
		t.Fatalf("unexpected event %v", e)
	}
}
