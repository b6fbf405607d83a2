// Copyright (c) 2026 BVK Chaitanya

// Package journal records every order placement attempt in a sqlite
// database for later inspection.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bvk/sigbot/exchange"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

type Status string

const (
	Placed  Status = "placed"
	Failed  Status = "failed"
	Skipped Status = "skipped"
)

// Entry is one placement attempt.
type Entry struct {
	ID string

	Time time.Time

	Exchange string
	Account  string
	MainCoin string
	AltCoin  string

	Side     exchange.OrderType
	Quantity decimal.Decimal
	Rate     decimal.Decimal

	Status  Status
	OrderID string
	Error   string
}

// NewEntry creates an entry for an order.
func NewEntry(order *exchange.MarketOrder, status Status, orderID string, err error) *Entry {
	e := &Entry{
		ID:       order.ClientOrderID,
		Time:     time.Now(),
		Exchange: order.Exchange,
		Account:  order.Account,
		MainCoin: order.MainCoin,
		AltCoin:  order.AltCoin,
		Side:     order.Type,
		Quantity: order.Quantity,
		Rate:     order.Rate,
		Status:   status,
		OrderID:  orderID,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at the given file path.
func Open(ctx context.Context, fpath string) (*Journal, error) {
	if dir := filepath.Dir(fpath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("could not create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fpath)
	if err != nil {
		return nil, fmt.Errorf("could not open journal database %q: %w", fpath, err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS orders (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  exchange TEXT NOT NULL,
  account TEXT NOT NULL,
  main_coin TEXT NOT NULL,
  alt_coin TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity TEXT NOT NULL,
  rate TEXT NOT NULL,
  status TEXT NOT NULL,
  order_id TEXT NOT NULL,
  error TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_ts ON orders(ts_ms);
`)
	if err != nil {
		return fmt.Errorf("could not create journal tables: %w", err)
	}
	return nil
}

// Record appends an entry to the journal.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO orders (id, ts_ms, exchange, account, main_coin, alt_coin, side, quantity, rate, status, order_id, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UnixMilli(), e.Exchange, e.Account, e.MainCoin, e.AltCoin,
		e.Side.String(), e.Quantity.String(), e.Rate.String(), string(e.Status), e.OrderID, e.Error)
	if err != nil {
		return fmt.Errorf("could not insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the last n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]*Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, ts_ms, exchange, account, main_coin, alt_coin, side, quantity, rate, status, order_id, error
FROM orders ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("could not query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e              Entry
			tsMs           int64
			side           string
			quantity, rate string
			status         string
		)
		if err := rows.Scan(&e.ID, &tsMs, &e.Exchange, &e.Account, &e.MainCoin, &e.AltCoin, &side, &quantity, &rate, &status, &e.OrderID, &e.Error); err != nil {
			return nil, fmt.Errorf("could not scan journal entry: %w", err)
		}
		e.Time = time.UnixMilli(tsMs)
		e.Side = exchange.ParseOrderType(side)
		e.Status = Status(status)
		if e.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("could not parse journal quantity %q: %w", quantity, err)
		}
		if e.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("could not parse journal rate %q: %w", rate, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate journal entries: %w", err)
	}
	return entries, nil
}
