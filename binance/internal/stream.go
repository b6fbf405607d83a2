// Copyright (c) 2026 BVK Chaitanya

package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/syncmap"
	"github.com/bvkgo/topic"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var StreamURL = url.URL{
	Scheme: "wss",
	Host:   "stream.binance.com:9443",
	Path:   "/stream",
}

// BookTicker is the best bid and ask of a symbol.
type BookTicker struct {
	Symbol string

	Bid decimal.Decimal
	Ask decimal.Decimal

	ReceivedAt time.Time
}

type bookTickerData struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`

	// Responses for the subscription requests.
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
}

type streamRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Stream maintains a websocket connection to the combined book ticker stream
// and keeps the latest quote for every subscribed symbol.
type Stream struct {
	cg ctxutil.CloseGroup

	url string

	mu sync.Mutex

	symbols map[string]struct{}

	// conn is non-nil while connected.
	conn *websocket.Conn

	nextID int64

	tickerMap syncmap.Map[string, *topic.Topic[*BookTicker]]
}

// NewStream starts the stream. Connection is opened when the first symbol is
// subscribed and is reopened with a backoff on failures.
func NewStream(streamURL string) *Stream {
	if streamURL == "" {
		streamURL = StreamURL.String()
	}
	s := &Stream{
		url:     streamURL,
		symbols: make(map[string]struct{}),
	}
	s.cg.Go(s.goRun)
	return s
}

func (s *Stream) Close() {
	s.cg.Close()
	for _, tp := range s.tickerMap.Range {
		tp.Close()
	}
}

func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

// Subscribe starts receiving quotes for a symbol.
func (s *Stream) Subscribe(symbol string) error {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.symbols[symbol]; ok {
		return nil
	}
	s.symbols[symbol] = struct{}{}
	s.tickerMap.LoadOrStore(symbol, topic.New[*BookTicker]())
	return s.sendLocked("SUBSCRIBE", []string{streamName(symbol)})
}

// Unsubscribe stops receiving quotes for a symbol.
func (s *Stream) Unsubscribe(symbol string) error {
	symbol = strings.ToUpper(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.symbols[symbol]; !ok {
		return os.ErrNotExist
	}
	delete(s.symbols, symbol)
	if tp, ok := s.tickerMap.LoadAndDelete(symbol); ok {
		tp.Close()
	}
	return s.sendLocked("UNSUBSCRIBE", []string{streamName(symbol)})
}

func (s *Stream) sendLocked(method string, params []string) error {
	if s.conn == nil || len(params) == 0 {
		// Subscriptions are sent when the connection is opened.
		return nil
	}
	s.nextID++
	req := &streamRequest{Method: method, Params: params, ID: s.nextID}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("could not send %s request: %w", method, err)
	}
	return nil
}

// Latest returns the most recent quote for a symbol.
func (s *Stream) Latest(symbol string) (*BookTicker, bool) {
	tp, ok := s.tickerMap.Load(strings.ToUpper(symbol))
	if !ok {
		return nil, false
	}
	return topic.Recent(tp)
}

// Symbols returns the subscribed symbols.
func (s *Stream) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var symbols []string
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	return symbols
}

func (s *Stream) numSymbols() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

func (s *Stream) goRun(ctx context.Context) {
	for i := 0; ctx.Err() == nil; {
		if s.numSymbols() == 0 {
			ctxutil.Sleep(ctx, time.Second)
			continue
		}
		if err := s.run(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("binance book ticker stream failed (will retry)", "err", err)
			ctxutil.Sleep(ctx, time.Second<<i)
			i = min(i+1, 5)
			continue
		}
		i = 0
	}
}

func (s *Stream) run(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("could not dial to %q: %w", s.url, err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	var streams []string
	for sym := range s.symbols {
		streams = append(streams, streamName(sym))
	}
	err = s.sendLocked("SUBSCRIBE", streams)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for ctx.Err() == nil {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("could not read websocket message: %w", err)
		}
		if err := s.handleMessage(msg, time.Now()); err != nil {
			slog.Warn("could not handle stream message (ignored)", "msg", string(msg), "err", err)
		}
	}
	return context.Cause(ctx)
}

func (s *Stream) handleMessage(msg []byte, now time.Time) error {
	var m streamMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	if m.ID != nil {
		if len(m.Result) != 0 && string(m.Result) != "null" {
			slog.Warn("unexpected response for a stream request", "id", *m.ID, "result", string(m.Result))
		}
		return nil
	}
	if !strings.HasSuffix(m.Stream, "@bookTicker") {
		return nil
	}

	var data bookTickerData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return err
	}
	bid, err := decimal.NewFromString(data.BidPrice)
	if err != nil {
		return fmt.Errorf("could not parse bid price %q: %w", data.BidPrice, err)
	}
	ask, err := decimal.NewFromString(data.AskPrice)
	if err != nil {
		return fmt.Errorf("could not parse ask price %q: %w", data.AskPrice, err)
	}

	tp, ok := s.tickerMap.Load(strings.ToUpper(data.Symbol))
	if !ok {
		return nil
	}
	tp.Send(&BookTicker{
		Symbol:     strings.ToUpper(data.Symbol),
		Bid:        bid,
		Ask:        ask,
		ReceivedAt: now,
	})
	return nil
}
