// Copyright (c) 2026 BVK Chaitanya

// Package bittrex implements the exchange interface for Bittrex.
package bittrex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bvk/sigbot/bittrex/internal"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/nonce"
	"github.com/shopspring/decimal"
)

const Name = "bittrex"

type Options struct {
	RestURL string

	HttpClientTimeout time.Duration

	RequestsPerSecond float64

	// HistoryPageSize is the number of closed orders fetched for the order
	// history.
	HistoryPageSize int

	TakerFee           decimal.Decimal
	MakerFee           decimal.Decimal
	MinimumOrderAmount decimal.Decimal
}

func (v *Options) setDefaults() {
	if v.HistoryPageSize == 0 {
		v.HistoryPageSize = 200
	}
	if v.TakerFee.IsZero() {
		v.TakerFee = decimal.RequireFromString("0.0025")
	}
	if v.MakerFee.IsZero() {
		v.MakerFee = decimal.RequireFromString("0.0025")
	}
	if v.MinimumOrderAmount.IsZero() {
		v.MinimumOrderAmount = decimal.RequireFromString("0.0005")
	}
}

type Exchange struct {
	opts Options

	client *internal.Client
}

var _ exchange.Exchange = &Exchange{}

// New creates a Bittrex exchange. Nonce source must be shared by all clients
// using the same api keys.
func New(nonces nonce.Source, opts *Options) (*Exchange, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	client, err := internal.New(nonces, &internal.Options{
		RestURL:           opts.RestURL,
		HttpClientTimeout: opts.HttpClientTimeout,
		RequestsPerSecond: opts.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create bittrex client: %w", err)
	}
	return &Exchange{opts: *opts, client: client}, nil
}

func (ex *Exchange) Name() string {
	return Name
}

func wrap(op string, err error) error {
	return fmt.Errorf("bittrex: could not %s: %w: %w", op, err, exchange.ErrExchange)
}

func toCreds(c *exchange.Credentials) (*internal.Credentials, error) {
	if err := c.Check(); err != nil {
		return nil, err
	}
	return &internal.Credentials{Key: c.Key, Secret: c.Secret}, nil
}

func (ex *Exchange) CreateMarket(mainCoin, altCoin string) string {
	return strings.ToUpper(altCoin) + "-" + strings.ToUpper(mainCoin)
}

// splitMarket returns the main and alt currencies of a market.
func splitMarket(market string) (mainCoin, altCoin string, ok bool) {
	alt, main, ok := strings.Cut(market, "-")
	return main, alt, ok && alt != "" && main != ""
}

func (ex *Exchange) TakerFee() decimal.Decimal {
	return ex.opts.TakerFee
}

func (ex *Exchange) MakerFee() decimal.Decimal {
	return ex.opts.MakerFee
}

func (ex *Exchange) MinimumOrderAmount() decimal.Decimal {
	return ex.opts.MinimumOrderAmount
}

func (ex *Exchange) GetTickers(ctx context.Context) (map[string]*exchange.Ticker, error) {
	tickers, err := ex.client.GetTickers(ctx)
	if err != nil {
		return nil, wrap("get tickers", err)
	}
	m := make(map[string]*exchange.Ticker, len(tickers))
	for _, t := range tickers {
		m[t.Symbol] = &exchange.Ticker{
			Market: t.Symbol,
			Ask:    t.AskRate,
			Bid:    t.BidRate,
			Last:   t.LastTradeRate,
		}
	}
	return m, nil
}

func (ex *Exchange) GetBalances(ctx context.Context, creds *exchange.Credentials) (map[string]decimal.Decimal, error) {
	c, err := toCreds(creds)
	if err != nil {
		return nil, err
	}
	balances, err := ex.client.GetBalances(ctx, c)
	if err != nil {
		return nil, wrap("get balances", err)
	}
	m := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		m[strings.ToUpper(b.CurrencySymbol)] = b.Total
	}
	return m, nil
}

func toHistoricalOrder(o *internal.Order) *exchange.HistoricalOrder {
	main, alt, _ := splitMarket(o.MarketSymbol)
	v := &exchange.HistoricalOrder{
		OrderID:           o.ID,
		MainCoin:          main,
		AltCoin:           alt,
		Quantity:          o.Quantity,
		QuantityRemaining: o.Quantity.Sub(o.FillQuantity),
		Rate:              o.Limit,
		Price:             o.Proceeds,
		Commission:        o.Commission,
		Timestamp:         o.CreatedAt.Unix(),
	}
	if o.ClosedAt != nil {
		v.Timestamp = o.ClosedAt.Unix()
	}
	if o.Type == internal.TypeLimit {
		switch o.Direction {
		case internal.DirectionBuy:
			v.Type = exchange.LimitBuy
		case internal.DirectionSell:
			v.Type = exchange.LimitSell
		}
	}
	return v
}

func (ex *Exchange) GetOrderHistory(ctx context.Context, creds *exchange.Credentials) ([]*exchange.HistoricalOrder, error) {
	c, err := toCreds(creds)
	if err != nil {
		return nil, err
	}
	orders, err := ex.client.GetClosedOrders(ctx, c, ex.opts.HistoryPageSize)
	if err != nil {
		return nil, wrap("get closed orders", err)
	}
	var history []*exchange.HistoricalOrder
	for _, o := range orders {
		history = append(history, toHistoricalOrder(o))
	}
	return history, nil
}

func (ex *Exchange) GetOpenOrders(ctx context.Context, creds *exchange.Credentials) ([]*exchange.HistoricalOrder, error) {
	c, err := toCreds(creds)
	if err != nil {
		return nil, err
	}
	orders, err := ex.client.GetOpenOrders(ctx, c)
	if err != nil {
		return nil, wrap("get open orders", err)
	}
	var open []*exchange.HistoricalOrder
	for _, o := range orders {
		open = append(open, toHistoricalOrder(o))
	}
	return open, nil
}

func (ex *Exchange) PlaceOrder(ctx context.Context, order *exchange.MarketOrder, creds *exchange.Credentials) (string, error) {
	c, err := toCreds(creds)
	if err != nil {
		return "", err
	}
	req := &internal.CreateOrderRequest{
		MarketSymbol:  ex.CreateMarket(order.MainCoin, order.AltCoin),
		Type:          internal.TypeLimit,
		Quantity:      order.Quantity,
		Limit:         order.Rate,
		TimeInForce:   internal.GoodTilCancelled,
		ClientOrderID: order.ClientOrderID,
	}
	switch order.Type {
	case exchange.LimitBuy:
		req.Direction = internal.DirectionBuy
	case exchange.LimitSell:
		req.Direction = internal.DirectionSell
	default:
		return "", fmt.Errorf("bittrex: order %s: %w", order, exchange.ErrUnsupportedOrderType)
	}
	resp, err := ex.client.CreateOrder(ctx, c, req)
	if err != nil {
		return "", wrap("create order", err)
	}
	return resp.ID, nil
}

func (ex *Exchange) CancelOrder(ctx context.Context, orderID string, creds *exchange.Credentials) error {
	c, err := toCreds(creds)
	if err != nil {
		return err
	}
	if _, err := ex.client.CancelOrder(ctx, c, orderID); err != nil {
		return wrap("cancel order", err)
	}
	return nil
}
