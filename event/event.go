// Copyright (c) 2026 BVK Chaitanya

// Package event implements a small publish/subscribe bus for the typed
// notifications exchanged between the components.
package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bvk/sigbot/exchange"
	"github.com/visvasity/topic"
)

// Event is implemented by all event variants.
type Event interface {
	String() string

	isEvent()
}

// ExpirationChanged is published when a duration valued setting (poll
// interval or cache ttl) is updated.
type ExpirationChanged struct {
	Name  string
	Value time.Duration
}

// ReplaceFlagChanged is published when the open order replacement setting is
// updated.
type ReplaceFlagChanged struct {
	Enabled bool
}

// OrderPlaced is published after an order is accepted by an exchange.
type OrderPlaced struct {
	Exchange string
	Account  string
	AltCoin  string
	Side     exchange.OrderType
	OrderID  string

	Order *exchange.MarketOrder
}

func (ExpirationChanged) isEvent()  {}
func (ReplaceFlagChanged) isEvent() {}
func (OrderPlaced) isEvent()        {}

func (v ExpirationChanged) String() string {
	return fmt.Sprintf("expiration-changed:%s=%s", v.Name, v.Value)
}

func (v ReplaceFlagChanged) String() string {
	return fmt.Sprintf("replace-flag-changed:%t", v.Enabled)
}

func (v OrderPlaced) String() string {
	return fmt.Sprintf("order-placed:%s/%s:%s:%s", v.Exchange, v.Account, v.Side, v.AltCoin)
}

// Handler is invoked synchronously for every published event.
type Handler func(Event)

type Bus struct {
	mu sync.Mutex

	handlers []Handler

	topic *topic.Topic[Event]
}

func NewBus() *Bus {
	return &Bus{
		topic: topic.New[Event](),
	}
}

// Close stops delivery to asynchronous subscribers.
func (b *Bus) Close() {
	b.topic.Close()
}

// Handle registers a synchronous handler. Handlers are invoked in the
// registration order on the publisher's goroutine.
func (b *Bus) Handle(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, h)
}

// Subscribe returns a receiver for asynchronous delivery of the events.
// Receiver must be closed by the caller.
func (b *Bus) Subscribe() (*topic.Receiver[Event], error) {
	return topic.Subscribe(b.topic, 0, false /* includeRecent */)
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()

	slog.Debug("publishing event", "event", e)
	for _, h := range handlers {
		h(e)
	}
	b.topic.Send(e)
}
