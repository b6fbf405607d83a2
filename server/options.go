// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"time"

	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/signal"
)

// Notifier delivers alert messages to the user.
type Notifier interface {
	SendMessage(ctx context.Context, at time.Time, text string) error
}

type Options struct {
	// Config holds the contents of the configuration file. An empty
	// configuration is used when nil.
	Config *config.File

	// JournalPath is the sqlite database file for the order journal. Orders
	// are not journaled when empty.
	JournalPath string

	// Exchanges, when non-empty, are used instead of the exchange clients
	// created from the account configuration.
	Exchanges []exchange.Exchange

	// SignalSource, when non-nil, replaces the imap mail source.
	SignalSource signal.Source

	// Notifiers receive alerts in addition to the telegram and pushover
	// clients created from the secrets.
	Notifiers []Notifier

	// NoTelegram disables the telegram client even when it is configured in
	// the secrets.
	NoTelegram bool
}

func (v *Options) setDefaults() {
	if v.Config == nil {
		v.Config = new(config.File)
	}
}
