// Copyright (c) 2026 BVK Chaitanya

// Package api defines the request and response types of the sigbot http
// endpoints. All endpoints accept json-encoded POST requests.
package api

import (
	"time"

	"github.com/bvk/sigbot/gobs"
	"github.com/shopspring/decimal"
)

const PositionsListPath = "/positions/list"

type PositionsListRequest struct {
	// Exchange and Account filter the positions when non-empty.
	Exchange string
	Account  string
}

type PositionsListResponse struct {
	Positions []*gobs.PositionState
}

const QueueListPath = "/queue/list"

type QueueListRequest struct {
}

type QueueListItem struct {
	Exchange string
	Account  string
	MainCoin string
	AltCoin  string
	Side     string
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

type QueueListResponse struct {
	Orders []*QueueListItem
}

const SettingsGetPath = "/settings/get"

type SettingsGetRequest struct {
	// Names of the settings to return. All settings are returned when empty.
	Names []string
}

type SettingsGetResponse struct {
	Values map[string]string
}

const SettingsSetPath = "/settings/set"

type SettingsSetRequest struct {
	Name  string
	Value string
}

type SettingsSetResponse struct {
	OldValue string
	NewValue string
}

const SignalSubmitPath = "/signal/submit"

type SignalSubmitRequest struct {
	// Line is a signal in the same form as the mail subjects.
	Line string
}

type SignalSubmitResponse struct {
	NumOrders int
}

const OrdersListPath = "/orders/list"

type OrdersListRequest struct {
	Limit int
}

type OrdersListItem struct {
	ID       string
	Time     time.Time
	Exchange string
	Account  string
	Market   string
	Side     string
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Status   string
	OrderID  string
	Error    string
}

type OrdersListResponse struct {
	Orders []*OrdersListItem
}

const StatusPath = "/status"

type StatusRequest struct {
}

type StatusResponse struct {
	Pid       int
	StartTime time.Time
	Uptime    time.Duration

	RSS        uint64
	CPUPercent float64

	Exchanges []string
	Accounts  []string

	NumPositions int
	NumQueued    int

	Tasks map[string]time.Duration

	ReplaceOrders bool
}
