// Copyright (c) 2026 BVK Chaitanya

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bvk/sigbot/account"
)

// File is the layout of the sigbot.toml configuration file.
//
//	[settings]
//	stoploss_poll_interval = "30s"
//	ticker_ttl = "10s"
//	replace_orders = false
//
//	[mail]
//	server = "imap.gmail.com:993"
//	allowed_senders = ["alerts@example.com"]
//	max_age = "1h"
//
//	[[account]]
//	exchange = "bittrex"
//	name = "main"
//	main_currency = "BTC"
//	buy_limit = "0.01"
//	stoploss_percent = "10"
//	trailing_stoploss_percent = "5"
type File struct {
	Settings SettingsFile `toml:"settings"`

	Mail MailFile `toml:"mail"`

	Binance BinanceFile `toml:"binance"`

	Accounts []*account.Config `toml:"account"`
}

type SettingsFile struct {
	MailPollInterval       string `toml:"mail_poll_interval"`
	StoplossPollInterval   string `toml:"stoploss_poll_interval"`
	OpenOrdersPollInterval string `toml:"open_orders_poll_interval"`
	QueueFlushInterval     string `toml:"queue_flush_interval"`

	TickerTTL  string `toml:"ticker_ttl"`
	BalanceTTL string `toml:"balance_ttl"`
	HistoryTTL string `toml:"history_ttl"`

	OpenOrderMaxAge string `toml:"open_order_max_age"`

	ReplaceOrders bool `toml:"replace_orders"`
}

type MailFile struct {
	Server         string   `toml:"server"`
	Mailbox        string   `toml:"mailbox"`
	AllowedSenders []string `toml:"allowed_senders"`
	SubjectPrefix  string   `toml:"subject_prefix"`
	MaxAge         string   `toml:"max_age"`
}

type BinanceFile struct {
	QuoteCurrencies []string `toml:"quote_currencies"`
}

// LoadFile reads the configuration file. A missing file is not an error and
// returns an empty configuration.
func LoadFile(fpath string) (*File, error) {
	f := new(File)
	if _, err := os.Stat(fpath); err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("could not stat config file %q: %w", fpath, err)
	}
	if _, err := toml.DecodeFile(fpath, f); err != nil {
		return nil, fmt.Errorf("could not decode config file %q: %w", fpath, err)
	}
	if _, err := f.Defaults(); err != nil {
		return nil, fmt.Errorf("config file %q has invalid settings: %w", fpath, err)
	}
	return f, nil
}

// SaveFile writes the configuration into a file atomically.
func SaveFile(fpath string, f *File) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("could not encode config file: %w", err)
	}
	tmp := fpath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	if err := os.Rename(tmp, fpath); err != nil {
		return fmt.Errorf("could not replace config file: %w", err)
	}
	return nil
}

// Defaults returns the settings from the configuration file with missing
// values filled with the defaults.
func (f *File) Defaults() (*Settings, error) {
	s := &Settings{
		ReplaceOrders: f.Settings.ReplaceOrders,
	}
	values := []struct {
		name  string
		value string
		ptr   *time.Duration
	}{
		{MailPollInterval, f.Settings.MailPollInterval, &s.MailPollInterval},
		{StoplossPollInterval, f.Settings.StoplossPollInterval, &s.StoplossPollInterval},
		{OpenOrdersPollInterval, f.Settings.OpenOrdersPollInterval, &s.OpenOrdersPollInterval},
		{QueueFlushInterval, f.Settings.QueueFlushInterval, &s.QueueFlushInterval},
		{TickerTTL, f.Settings.TickerTTL, &s.TickerTTL},
		{BalanceTTL, f.Settings.BalanceTTL, &s.BalanceTTL},
		{HistoryTTL, f.Settings.HistoryTTL, &s.HistoryTTL},
		{OpenOrderMaxAge, f.Settings.OpenOrderMaxAge, &s.OpenOrderMaxAge},
	}
	for _, v := range values {
		if len(v.value) == 0 {
			continue
		}
		d, err := time.ParseDuration(v.value)
		if err != nil {
			return nil, fmt.Errorf("could not parse %s value %q: %w", v.name, v.value, err)
		}
		*v.ptr = d
	}
	s.setDefaults()
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

// MaxMailAge returns the parsed mail max age or a default of one day.
func (f *File) MaxMailAge() (time.Duration, error) {
	if len(f.Mail.MaxAge) == 0 {
		return 24 * time.Hour, nil
	}
	return time.ParseDuration(f.Mail.MaxAge)
}
