// Copyright (c) 2026 BVK Chaitanya

// Package binance implements the exchange interface for Binance spot markets.
package binance

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/bvk/sigbot/binance/internal"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/syncmap"
	"github.com/bvk/sigbot/ttlcache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const Name = "binance"

type Options struct {
	// BaseURL overrides the REST endpoint when non-empty.
	BaseURL string

	// StreamURL overrides the websocket endpoint when non-empty.
	StreamURL string

	// DisableStream turns off the live quotes for watched markets.
	DisableStream bool

	// MaxStreamAge is the max age of a streamed quote that can be used in
	// place of the REST ticker.
	MaxStreamAge time.Duration

	RequestsPerSecond float64

	// QuoteCurrencies are the main currencies searched for the order history
	// since Binance requires a symbol for listing orders.
	QuoteCurrencies []string

	// HistoryLimit is the max number of orders fetched per symbol.
	HistoryLimit int

	// ExchangeInfoTimeout is the lifetime of the cached symbol list.
	ExchangeInfoTimeout time.Duration

	TakerFee           decimal.Decimal
	MakerFee           decimal.Decimal
	MinimumOrderAmount decimal.Decimal
}

func (v *Options) setDefaults() {
	if v.MaxStreamAge == 0 {
		v.MaxStreamAge = 10 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
	if len(v.QuoteCurrencies) == 0 {
		v.QuoteCurrencies = []string{"BTC", "USDT"}
	}
	if v.HistoryLimit == 0 {
		v.HistoryLimit = 100
	}
	if v.ExchangeInfoTimeout == 0 {
		v.ExchangeInfoTimeout = time.Hour
	}
	if v.TakerFee.IsZero() {
		v.TakerFee = decimal.RequireFromString("0.001")
	}
	if v.MakerFee.IsZero() {
		v.MakerFee = decimal.RequireFromString("0.001")
	}
	if v.MinimumOrderAmount.IsZero() {
		v.MinimumOrderAmount = decimal.RequireFromString("0.0001")
	}
}

type symbolInfo struct {
	base  string
	quote string
}

type Exchange struct {
	opts Options

	limiter *rate.Limiter

	// public client is used for the unsigned calls.
	public *binance.Client

	clientMap syncmap.Map[string, *binance.Client]

	symbols *ttlcache.Cache[string, map[string]symbolInfo]

	stream *internal.Stream
}

var _ exchange.Exchange = &Exchange{}
var _ exchange.MarketWatcher = &Exchange{}

func New(opts *Options) *Exchange {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	ex := &Exchange{
		opts:    *opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
	ex.public = ex.newClient("", "")
	ex.symbols = ttlcache.New[string, map[string]symbolInfo](nil)
	if !opts.DisableStream {
		ex.stream = internal.NewStream(opts.StreamURL)
	}
	return ex
}

func (ex *Exchange) Close() {
	if ex.stream != nil {
		ex.stream.Close()
	}
}

func (ex *Exchange) newClient(key, secret string) *binance.Client {
	c := binance.NewClient(key, secret)
	if ex.opts.BaseURL != "" {
		c.BaseURL = ex.opts.BaseURL
	}
	return c
}

func (ex *Exchange) client(creds *exchange.Credentials) (*binance.Client, error) {
	if err := creds.Check(); err != nil {
		return nil, err
	}
	if c, ok := ex.clientMap.Load(creds.Key); ok && c.SecretKey == creds.Secret {
		return c, nil
	}
	c := ex.newClient(creds.Key, creds.Secret)
	ex.clientMap.Store(creds.Key, c)
	return c, nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("binance: could not %s: %w: %w", op, err, exchange.ErrExchange)
}

func (ex *Exchange) Name() string {
	return Name
}

func (ex *Exchange) CreateMarket(mainCoin, altCoin string) string {
	return strings.ToUpper(altCoin) + strings.ToUpper(mainCoin)
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

func (ex *Exchange) getSymbols(ctx context.Context) (map[string]symbolInfo, error) {
	return ex.symbols.Get(ctx, "exchangeInfo", ex.opts.ExchangeInfoTimeout, ex.fetchSymbols)
}

func (ex *Exchange) fetchSymbols(ctx context.Context) (map[string]symbolInfo, error) {
	if err := ex.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	info, err := ex.public.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, wrap("get exchange info", err)
	}
	m := make(map[string]symbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		m[s.Symbol] = symbolInfo{base: s.BaseAsset, quote: s.QuoteAsset}
	}
	return m, nil
}

// splitSymbol returns the main and alt currencies of a symbol.
func (ex *Exchange) splitSymbol(ctx context.Context, symbol string) (mainCoin, altCoin string, err error) {
	symbols, err := ex.getSymbols(ctx)
	if err != nil && symbols == nil {
		return "", "", err
	}
	if s, ok := symbols[symbol]; ok {
		return s.quote, s.base, nil
	}
	// Fallback to the known quote currencies when the symbol is not listed.
	for _, q := range ex.opts.QuoteCurrencies {
		if alt, ok := strings.CutSuffix(symbol, q); ok && alt != "" {
			return q, alt, nil
		}
	}
	return "", "", fmt.Errorf("symbol %q: %w", symbol, exchange.ErrExchange)
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		slog.Warn("could not parse decimal value from binance (ignored)", "value", s, "err", err)
		return decimal.Zero
	}
	return v
}

// GetTickers returns the book tickers for all symbols. Streamed quotes of the
// watched markets take precedence when they are fresh. When the REST call
// fails, fresh streamed quotes are returned along with the error.
func (ex *Exchange) GetTickers(ctx context.Context) (map[string]*exchange.Ticker, error) {
	m := make(map[string]*exchange.Ticker)

	var rerr error
	if err := ex.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tickers, err := ex.public.NewListBookTickersService().Do(ctx)
	if err != nil {
		rerr = wrap("list book tickers", err)
	}
	for _, t := range tickers {
		m[t.Symbol] = &exchange.Ticker{
			Market: t.Symbol,
			Ask:    parseDecimal(t.AskPrice),
			Bid:    parseDecimal(t.BidPrice),
		}
	}
	ex.overlayStream(m, time.Now())

	if rerr != nil && len(m) == 0 {
		return nil, rerr
	}
	if rerr != nil {
		slog.Warn("using streamed quotes for watched markets", "markets", len(m), "err", rerr)
	}
	return m, nil
}

func (ex *Exchange) overlayStream(m map[string]*exchange.Ticker, now time.Time) {
	if ex.stream == nil {
		return
	}
	for _, sym := range ex.stream.Symbols() {
		bt, ok := ex.stream.Latest(sym)
		if !ok || now.Sub(bt.ReceivedAt) > ex.opts.MaxStreamAge {
			continue
		}
		t := &exchange.Ticker{Market: sym, Ask: bt.Ask, Bid: bt.Bid}
		if old, ok := m[sym]; ok {
			t.Last = old.Last
		}
		m[sym] = t
	}
}

// WatchMarket subscribes to the live quotes of a market.
func (ex *Exchange) WatchMarket(ctx context.Context, market string) error {
	if ex.stream == nil {
		return nil
	}
	if err := ex.stream.Subscribe(market); err != nil {
		return wrap("watch market", err)
	}
	return nil
}

func (ex *Exchange) UnwatchMarket(ctx context.Context, market string) error {
	if ex.stream == nil {
		return nil
	}
	if err := ex.stream.Unsubscribe(market); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrap("unwatch market", err)
	}
	return nil
}

func (ex *Exchange) GetBalances(ctx context.Context, creds *exchange.Credentials) (map[string]decimal.Decimal, error) {
	c, err := ex.client(creds)
	if err != nil {
		return nil, err
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	account, err := c.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, wrap("get account", err)
	}
	m := make(map[string]decimal.Decimal)
	for _, b := range account.Balances {
		total := parseDecimal(b.Free).Add(parseDecimal(b.Locked))
		if total.IsZero() {
			continue
		}
		m[strings.ToUpper(b.Asset)] = total
	}
	return m, nil
}

func (ex *Exchange) toHistoricalOrder(ctx context.Context, o *binance.Order) (*exchange.HistoricalOrder, error) {
	main, alt, err := ex.splitSymbol(ctx, o.Symbol)
	if err != nil {
		return nil, err
	}
	quantity := parseDecimal(o.OrigQuantity)
	executed := parseDecimal(o.ExecutedQuantity)
	quote := parseDecimal(o.CummulativeQuoteQuantity)

	v := &exchange.HistoricalOrder{
		OrderID:           orderID(o.Symbol, o.OrderID),
		MainCoin:          main,
		AltCoin:           alt,
		Quantity:          quantity,
		QuantityRemaining: quantity.Sub(executed),
		Rate:              parseDecimal(o.Price),
		Price:             quote,
		Commission:        quote.Mul(ex.opts.TakerFee),
		Timestamp:         o.UpdateTime / 1000,
	}
	if v.Timestamp == 0 {
		v.Timestamp = o.Time / 1000
	}
	// Average execution price is the cost basis for partially filled orders.
	if executed.IsPositive() && quote.IsPositive() {
		v.Rate = quote.Div(executed)
	}
	if o.Type == binance.OrderTypeLimit {
		switch o.Side {
		case binance.SideTypeBuy:
			v.Type = exchange.LimitBuy
		case binance.SideTypeSell:
			v.Type = exchange.LimitSell
		}
	}
	return v, nil
}

// GetOrderHistory returns the closed orders of all symbols made of the
// account's non-zero balances and the configured quote currencies, newest
// first.
func (ex *Exchange) GetOrderHistory(ctx context.Context, creds *exchange.Credentials) ([]*exchange.HistoricalOrder, error) {
	c, err := ex.client(creds)
	if err != nil {
		return nil, err
	}
	balances, err := ex.GetBalances(ctx, creds)
	if err != nil {
		return nil, err
	}
	symbols, err := ex.getSymbols(ctx)
	if err != nil && symbols == nil {
		return nil, err
	}

	var history []*exchange.HistoricalOrder
	for asset := range balances {
		for _, quote := range ex.opts.QuoteCurrencies {
			symbol := ex.CreateMarket(quote, asset)
			if _, ok := symbols[symbol]; !ok {
				continue
			}
			if err := ex.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			orders, err := c.NewListOrdersService().Symbol(symbol).Limit(ex.opts.HistoryLimit).Do(ctx)
			if err != nil {
				return nil, wrap("list orders for "+symbol, err)
			}
			for _, o := range orders {
				if o.Status == binance.OrderStatusTypeNew {
					continue
				}
				if parseDecimal(o.ExecutedQuantity).IsZero() {
					continue
				}
				v, err := ex.toHistoricalOrder(ctx, o)
				if err != nil {
					return nil, err
				}
				history = append(history, v)
			}
		}
	}
	slices.SortStableFunc(history, func(a, b *exchange.HistoricalOrder) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	return history, nil
}

func (ex *Exchange) GetOpenOrders(ctx context.Context, creds *exchange.Credentials) ([]*exchange.HistoricalOrder, error) {
	c, err := ex.client(creds)
	if err != nil {
		return nil, err
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := c.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, wrap("list open orders", err)
	}
	var open []*exchange.HistoricalOrder
	for _, o := range orders {
		v, err := ex.toHistoricalOrder(ctx, o)
		if err != nil {
			return nil, err
		}
		// Open orders use the creation time.
		v.Timestamp = o.Time / 1000
		open = append(open, v)
	}
	return open, nil
}

func (ex *Exchange) PlaceOrder(ctx context.Context, order *exchange.MarketOrder, creds *exchange.Credentials) (string, error) {
	var side binance.SideType
	switch order.Type {
	case exchange.LimitBuy:
		side = binance.SideTypeBuy
	case exchange.LimitSell:
		side = binance.SideTypeSell
	default:
		return "", fmt.Errorf("binance: order %s: %w", order, exchange.ErrUnsupportedOrderType)
	}
	c, err := ex.client(creds)
	if err != nil {
		return "", err
	}
	symbol := ex.CreateMarket(order.MainCoin, order.AltCoin)
	svc := c.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(order.Quantity.String()).
		Price(order.Rate.String())
	if order.ClientOrderID != "" {
		svc = svc.NewClientOrderID(order.ClientOrderID)
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return "", wrap("create order", err)
	}
	return orderID(symbol, resp.OrderID), nil
}

// orderID returns a string order id that carries the symbol since Binance
// requires it for cancellations.
func orderID(symbol string, id int64) string {
	return symbol + ":" + strconv.FormatInt(id, 10)
}

func parseOrderID(s string) (symbol string, id int64, err error) {
	symbol, sid, ok := strings.Cut(s, ":")
	if !ok || symbol == "" {
		return "", 0, fmt.Errorf("order id %q: %w", s, errInvalidOrderID)
	}
	id, err = strconv.ParseInt(sid, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("order id %q: %w", s, errInvalidOrderID)
	}
	return symbol, id, nil
}

var errInvalidOrderID = errors.New("invalid binance order id")

func (ex *Exchange) CancelOrder(ctx context.Context, id string, creds *exchange.Credentials) error {
	symbol, oid, err := parseOrderID(id)
	if err != nil {
		return err
	}
	c, err := ex.client(creds)
	if err != nil {
		return err
	}
	if err := ex.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.NewCancelOrderService().Symbol(symbol).OrderID(oid).Do(ctx); err != nil {
		return wrap("cancel order", err)
	}
	return nil
}
