// Copyright (c) 2026 BVK Chaitanya

package config

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Names of the runtime settings.
const (
	MailPollInterval       = "mail-poll-interval"
	StoplossPollInterval   = "stoploss-poll-interval"
	OpenOrdersPollInterval = "open-orders-poll-interval"
	QueueFlushInterval     = "queue-flush-interval"
	TickerTTL              = "ticker-ttl"
	BalanceTTL             = "balance-ttl"
	HistoryTTL             = "history-ttl"
	OpenOrderMaxAge        = "open-order-max-age"
	ReplaceOrders          = "replace-orders"
)

// Settings holds the runtime configurable values.
type Settings struct {
	MailPollInterval       time.Duration
	StoplossPollInterval   time.Duration
	OpenOrdersPollInterval time.Duration
	QueueFlushInterval     time.Duration

	TickerTTL  time.Duration
	BalanceTTL time.Duration
	HistoryTTL time.Duration

	OpenOrderMaxAge time.Duration

	ReplaceOrders bool
}

func (v *Settings) setDefaults() {
	if v.MailPollInterval == 0 {
		v.MailPollInterval = time.Minute
	}
	if v.StoplossPollInterval == 0 {
		v.StoplossPollInterval = 30 * time.Second
	}
	if v.OpenOrdersPollInterval == 0 {
		v.OpenOrdersPollInterval = 5 * time.Minute
	}
	if v.QueueFlushInterval == 0 {
		v.QueueFlushInterval = 5 * time.Second
	}
	if v.TickerTTL == 0 {
		v.TickerTTL = 10 * time.Second
	}
	if v.BalanceTTL == 0 {
		v.BalanceTTL = 30 * time.Second
	}
	if v.HistoryTTL == 0 {
		v.HistoryTTL = 5 * time.Minute
	}
	if v.OpenOrderMaxAge == 0 {
		v.OpenOrderMaxAge = 30 * time.Minute
	}
}

// Check validates the settings.
func (v *Settings) Check() error {
	intervals := []time.Duration{
		v.MailPollInterval,
		v.StoplossPollInterval,
		v.OpenOrdersPollInterval,
		v.QueueFlushInterval,
	}
	if slices.ContainsFunc(intervals, func(d time.Duration) bool { return d < time.Second }) {
		return fmt.Errorf("poll intervals must be at least one second")
	}
	ttls := []time.Duration{v.TickerTTL, v.BalanceTTL, v.HistoryTTL, v.OpenOrderMaxAge}
	if slices.ContainsFunc(ttls, func(d time.Duration) bool { return d < 0 }) {
		return fmt.Errorf("ttl values cannot be negative")
	}
	return nil
}

// Durations returns duration valued settings keyed by their names.
func (v *Settings) Durations() map[string]time.Duration {
	return map[string]time.Duration{
		MailPollInterval:       v.MailPollInterval,
		StoplossPollInterval:   v.StoplossPollInterval,
		OpenOrdersPollInterval: v.OpenOrdersPollInterval,
		QueueFlushInterval:     v.QueueFlushInterval,
		TickerTTL:              v.TickerTTL,
		BalanceTTL:             v.BalanceTTL,
		HistoryTTL:             v.HistoryTTL,
		OpenOrderMaxAge:        v.OpenOrderMaxAge,
	}
}

func (v *Settings) durationPtr(name string) *time.Duration {
	switch name {
	case MailPollInterval:
		return &v.MailPollInterval
	case StoplossPollInterval:
		return &v.StoplossPollInterval
	case OpenOrdersPollInterval:
		return &v.OpenOrdersPollInterval
	case QueueFlushInterval:
		return &v.QueueFlushInterval
	case TickerTTL:
		return &v.TickerTTL
	case BalanceTTL:
		return &v.BalanceTTL
	case HistoryTTL:
		return &v.HistoryTTL
	case OpenOrderMaxAge:
		return &v.OpenOrderMaxAge
	}
	return nil
}

// Get returns the setting value in string form.
func (v *Settings) Get(name string) (string, error) {
	if name == ReplaceOrders {
		return strconv.FormatBool(v.ReplaceOrders), nil
	}
	if p := v.durationPtr(name); p != nil {
		return p.String(), nil
	}
	return "", fmt.Errorf("setting %q is not defined", name)
}

// Names returns names of all settings.
func Names() []string {
	return []string{
		MailPollInterval,
		StoplossPollInterval,
		OpenOrdersPollInterval,
		QueueFlushInterval,
		TickerTTL,
		BalanceTTL,
		HistoryTTL,
		OpenOrderMaxAge,
		ReplaceOrders,
	}
}
