// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/gobs"
	"github.com/visvasity/topic"
)

func (s *Server) sendAlerts(ctx context.Context, receiver *topic.Receiver[event.Event]) error {
	eventsCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case e, ok := <-eventsCh:
			if !ok {
				return os.ErrClosed
			}
			if msg := alertMessage(e); len(msg) != 0 {
				s.notify(ctx, time.Now(), msg)
			}
		}
	}
}

// alertMessage returns the user notification for an event. Events that
// need no notification return an empty string.
func alertMessage(e event.Event) string {
	switch v := e.(type) {
	case event.OrderPlaced:
		side := "Bought"
		if v.Side == exchange.LimitSell {
			side = "Sold"
		}
		if v.Order == nil {
			return fmt.Sprintf("%s %s in %s/%s (order %s).", side, v.AltCoin, v.Exchange, v.Account, v.OrderID)
		}
		return fmt.Sprintf("%s %s %s at %s %s in %s/%s (order %s).",
			side, v.Order.Quantity, v.AltCoin, v.Order.Rate, v.Order.MainCoin, v.Exchange, v.Account, v.OrderID)
	case event.ReplaceFlagChanged:
		if v.Enabled {
			return "Stale open orders will be replaced."
		}
		return "Stale open orders will not be replaced."
	}
	return ""
}

func (s *Server) notify(ctx context.Context, at time.Time, msg string) {
	for _, n := range s.notifiers {
		if err := n.SendMessage(ctx, at, msg); err != nil {
			slog.Warn("could not send alert message (ignored)", "message", msg, "err", err)
		}
	}
}

// onInvalidPosition is called with the stoploss service lock held, so the
// alert is sent on a separate goroutine.
func (s *Server) onInvalidPosition(state *gobs.PositionState, err error) {
	if len(s.notifiers) == 0 {
		return
	}
	at := time.Now()
	msg := fmt.Sprintf("Stoploss protection for %s in %s/%s is removed: %v.", state.AltCoin, state.Exchange, state.Account, err)
	s.cg.Go(func(ctx context.Context) {
		s.notify(ctx, at, msg)
	})
}
