// Copyright (c) 2026 BVK Chaitanya

package account

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bvk/sigbot/exchange"
	"github.com/shopspring/decimal"
)

var ErrUnknownAccount = errors.New("unknown account")

var d100 = decimal.NewFromInt(100)

// Account holds trading parameters for one exchange account. Accounts are
// immutable once loaded.
type Account struct {
	exchange string
	name     string

	mainCurrency string

	buyLimit decimal.Decimal

	stoplossPercent         decimal.Decimal
	trailingStoplossPercent decimal.Decimal
	minimumGainPercent      decimal.Decimal

	creds *exchange.Credentials
}

// Config is the account stanza in the configuration file. Decimal values are
// strings to avoid float conversions.
type Config struct {
	Exchange string `toml:"exchange"`
	Name     string `toml:"name"`

	MainCurrency string `toml:"main_currency"`

	BuyLimit string `toml:"buy_limit"`

	StoplossPercent         string `toml:"stoploss_percent"`
	TrailingStoplossPercent string `toml:"trailing_stoploss_percent"`
	MinimumGainPercent      string `toml:"minimum_gain_percent"`
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	if len(s) == 0 {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not parse %s value %q: %w", name, s, err)
	}
	return v, nil
}

// New creates an account from the configuration and credentials.
func New(cfg *Config, creds *exchange.Credentials) (*Account, error) {
	if len(cfg.Exchange) == 0 || len(cfg.Name) == 0 {
		return nil, fmt.Errorf("account exchange and name cannot be empty: %w", os.ErrInvalid)
	}
	if len(cfg.MainCurrency) == 0 {
		return nil, fmt.Errorf("account %s/%s main currency cannot be empty", cfg.Exchange, cfg.Name)
	}
	a := &Account{
		exchange:     strings.ToLower(cfg.Exchange),
		name:         cfg.Name,
		mainCurrency: strings.ToUpper(cfg.MainCurrency),
		creds:        creds,
	}
	var err error
	if a.buyLimit, err = parseDecimal("buy_limit", cfg.BuyLimit); err != nil {
		return nil, err
	}
	if a.stoplossPercent, err = parseDecimal("stoploss_percent", cfg.StoplossPercent); err != nil {
		return nil, err
	}
	if a.trailingStoplossPercent, err = parseDecimal("trailing_stoploss_percent", cfg.TrailingStoplossPercent); err != nil {
		return nil, err
	}
	if a.minimumGainPercent, err = parseDecimal("minimum_gain_percent", cfg.MinimumGainPercent); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, fmt.Errorf("account %s: %w", a, err)
	}
	return a, nil
}

func (a *Account) check() error {
	if a.buyLimit.IsNegative() {
		return fmt.Errorf("buy limit cannot be negative")
	}
	for _, p := range []decimal.Decimal{a.stoplossPercent, a.trailingStoplossPercent, a.minimumGainPercent} {
		if p.IsNegative() || p.GreaterThanOrEqual(d100) {
			return fmt.Errorf("percent values must be in [0, 100) range")
		}
	}
	return nil
}

func (a *Account) String() string {
	return a.exchange + "/" + a.name
}

func (a *Account) Exchange() string {
	return a.exchange
}

func (a *Account) Name() string {
	return a.name
}

func (a *Account) MainCurrency() string {
	return a.mainCurrency
}

func (a *Account) BuyLimit() decimal.Decimal {
	return a.buyLimit
}

func (a *Account) StoplossPercent() decimal.Decimal {
	return a.stoplossPercent
}

func (a *Account) TrailingStoplossPercent() decimal.Decimal {
	return a.trailingStoplossPercent
}

// MinimumGainPercent is carried for configuration compatibility. It is kept
// through Config round trips, but no component reads it: trailing stoploss
// activation is derived from the bought price and the trailing percent alone.
func (a *Account) MinimumGainPercent() decimal.Decimal {
	return a.minimumGainPercent
}

func (a *Account) Credentials() *exchange.Credentials {
	return a.creds
}

// Config returns the configuration stanza for the account.
func (a *Account) Config() *Config {
	return &Config{
		Exchange:                a.exchange,
		Name:                    a.name,
		MainCurrency:            a.mainCurrency,
		BuyLimit:                a.buyLimit.String(),
		StoplossPercent:         a.stoplossPercent.String(),
		TrailingStoplossPercent: a.trailingStoplossPercent.String(),
		MinimumGainPercent:      a.minimumGainPercent.String(),
	}
}
