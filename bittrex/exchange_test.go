// Copyright (c) 2026 BVK Chaitanya

package bittrex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bvk/sigbot/bittrex/internal"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/nonce"
	"github.com/shopspring/decimal"
)

var testCreds = &exchange.Credentials{Key: "key", Secret: "secret"}

// newTestServer returns a bittrex exchange connected to a fake server that
// verifies the request signatures.
func newTestServer(t *testing.T, handler http.HandlerFunc) *Exchange {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("Api-Key"); key != "" {
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))

			uri := "http://" + r.Host + r.URL.RequestURI()
			hash, sig := internal.Sign(testCreds.Secret, r.Header.Get("Api-Timestamp"), uri, r.Method, string(body))
			if hash != r.Header.Get("Api-Content-Hash") || sig != r.Header.Get("Api-Signature") {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"code":"INVALID_SIGNATURE"}`)
				return
			}
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	ex, err := New(nonce.New(time.Now), &Options{RestURL: srv.URL + "/v3", RequestsPerSecond: 1000})
	if err != nil {
		t.Fatal(err)
	}
	return ex
}

func TestGetTickers(t *testing.T) {
	ex := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/markets/tickers" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `[{"symbol":"ETH-BTC","lastTradeRate":"0.0301","bidRate":"0.03","askRate":"0.0302"}]`)
	})

	tickers, err := ex.GetTickers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ticker, ok := tickers[ex.CreateMarket("btc", "eth")]
	if !ok {
		t.Fatalf("want ETH-BTC ticker, got %v", tickers)
	}
	if !ticker.Bid.Equal(decimal.RequireFromString("0.03")) || !ticker.Ask.Equal(decimal.RequireFromString("0.0302")) {
		t.Fatalf("unexpected ticker %+v", ticker)
	}
}

func TestGetBalancesSigned(t *testing.T) {
	ex := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `[{"currencySymbol":"eth","total":"1.5","available":"1.0"},{"currencySymbol":"BTC","total":"0.2","available":"0.2"}]`)
	})

	balances, err := ex.GetBalances(context.Background(), testCreds)
	if err != nil {
		t.Fatal(err)
	}
	if !balances["ETH"].Equal(decimal.RequireFromString("1.5")) || !balances["BTC"].Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("unexpected balances %v", balances)
	}

	if _, err := ex.GetBalances(context.Background(), &exchange.Credentials{Key: "key", Secret: "wrong"}); !errors.Is(err, exchange.ErrExchange) {
		t.Fatalf("want ErrExchange for bad signature, got %v", err)
	}
	if _, err := ex.GetBalances(context.Background(), nil); err == nil {
		t.Fatalf("want error for missing credentials")
	}
}

func TestGetOrderHistory(t *testing.T) {
	ex := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/orders/closed" || r.URL.Query().Get("pageSize") != "200" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `[
{"id":"2","marketSymbol":"ETH-BTC","direction":"SELL","type":"LIMIT","quantity":"1","limit":"0.04","fillQuantity":"1","commission":"0.0001","proceeds":"0.04","status":"CLOSED","createdAt":"2024-01-02T00:00:00Z","closedAt":"2024-01-02T00:01:00Z"},
{"id":"1","marketSymbol":"ETH-BTC","direction":"BUY","type":"LIMIT","quantity":"4","limit":"0.03","fillQuantity":"1","commission":"0.0001","proceeds":"0.03","status":"CLOSED","createdAt":"2024-01-01T00:00:00Z"},
{"id":"0","marketSymbol":"ETH-BTC","direction":"BUY","type":"MARKET","quantity":"1","fillQuantity":"1","status":"CLOSED","createdAt":"2023-12-01T00:00:00Z"}
]`)
	})

	history, err := ex.GetOrderHistory(context.Background(), testCreds)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("want 3 orders, got %d", len(history))
	}
	sell, buy, market := history[0], history[1], history[2]
	if sell.Type != exchange.LimitSell || sell.MainCoin != "BTC" || sell.AltCoin != "ETH" {
		t.Fatalf("unexpected sell order %+v", sell)
	}
	if want := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC).Unix(); sell.Timestamp != want {
		t.Fatalf("want closed time as timestamp, got %d", sell.Timestamp)
	}
	if buy.Type != exchange.LimitBuy || !buy.Filled().Equal(decimal.NewFromInt(1)) || !buy.Rate.Equal(decimal.RequireFromString("0.03")) {
		t.Fatalf("unexpected buy order %+v", buy)
	}
	if market.Type != exchange.Unsupported {
		t.Fatalf("market orders must be unsupported, got %s", market.Type)
	}
}

func TestPlaceAndCancelOrder(t *testing.T) {
	var created atomic.Value
	ex := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v3/orders":
			req := new(internal.CreateOrderRequest)
			if err := json.NewDecoder(r.Body).Decode(req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			created.Store(req)
			io.WriteString(w, `{"id":"abc","marketSymbol":"ETH-BTC","status":"OPEN"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/v3/orders/abc":
			io.WriteString(w, `{"id":"abc","status":"CLOSED"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"code":"NOT_FOUND"}`)
		}
	})

	order := &exchange.MarketOrder{
		MainCoin:      "BTC",
		AltCoin:       "ETH",
		Type:          exchange.LimitBuy,
		Quantity:      decimal.RequireFromString("0.33250208"),
		Rate:          decimal.RequireFromString("0.03"),
		ClientOrderID: "client-1",
	}
	id, err := ex.PlaceOrder(context.Background(), order, testCreds)
	if err != nil {
		t.Fatal(err)
	}
	if id != "abc" {
		t.Fatalf("want order id abc, got %q", id)
	}
	req := created.Load().(*internal.CreateOrderRequest)
	if req.MarketSymbol != "ETH-BTC" || req.Direction != "BUY" || req.Type != "LIMIT" || !req.Quantity.Equal(order.Quantity) || req.ClientOrderID != "client-1" {
		t.Fatalf("unexpected create order request %+v", req)
	}

	if err := ex.CancelOrder(context.Background(), "abc", testCreds); err != nil {
		t.Fatal(err)
	}
	if err := ex.CancelOrder(context.Background(), "missing", testCreds); !errors.Is(err, exchange.ErrExchange) {
		t.Fatalf("want ErrExchange, got %v", err)
	}

	order.Type = exchange.Unsupported
	if _, err := ex.PlaceOrder(context.Background(), order, testCreds); !errors.Is(err, exchange.ErrUnsupportedOrderType) {
		t.Fatalf("want ErrUnsupportedOrderType, got %v", err)
	}
}

func TestRetryOnThrottle(t *testing.T) {
	var calls atomic.Int32
	ex := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `[]`)
	})
	if _, err := ex.GetTickers(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("want one retry, got %d calls", n)
	}
}
