// Copyright (c) 2026 BVK Chaitanya

// Package signal turns trading signals received over mail into order
// skeletons.
//
// A signal is a single line of the form
//
//	<prefix> <exchange>[/<account>] <BUY|SELL> <ALT>[-<MAIN>]
//
// for example, "sigbot bittrex/main BUY ETH-BTC". When the account is
// omitted the signal applies to every account on the exchange. When the main
// currency is omitted the account's main currency is used.
package signal

import (
	"fmt"
	"os"
	"strings"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/exchange"
)

const DefaultPrefix = "sigbot"

type Signal struct {
	Exchange string
	Account  string

	Type exchange.OrderType

	AltCoin  string
	MainCoin string
}

func (v *Signal) String() string {
	target := v.Exchange
	if v.Account != "" {
		target += "/" + v.Account
	}
	market := v.AltCoin
	if v.MainCoin != "" {
		market += "-" + v.MainCoin
	}
	return fmt.Sprintf("%s %s %s", target, v.Type, market)
}

// Parse parses a signal line. Returns os.ErrInvalid if the line is not a
// signal.
func Parse(line, prefix string) (*Signal, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	fields := strings.Fields(line)
	if len(fields) != 4 || !strings.EqualFold(fields[0], prefix) {
		return nil, fmt.Errorf("line %q is not a signal: %w", line, os.ErrInvalid)
	}

	v := new(Signal)
	target, side, market := fields[1], fields[2], fields[3]

	exName, acctName, _ := strings.Cut(target, "/")
	if exName == "" {
		return nil, fmt.Errorf("signal %q has no exchange name: %w", line, os.ErrInvalid)
	}
	v.Exchange, v.Account = strings.ToLower(exName), acctName

	v.Type = exchange.ParseOrderType(side)
	if v.Type == exchange.Unsupported {
		return nil, fmt.Errorf("signal %q side %q: %w", line, side, exchange.ErrUnsupportedOrderType)
	}

	alt, main, _ := strings.Cut(market, "-")
	if alt == "" {
		return nil, fmt.Errorf("signal %q has no currency: %w", line, os.ErrInvalid)
	}
	v.AltCoin, v.MainCoin = strings.ToUpper(alt), strings.ToUpper(main)
	return v, nil
}

// Orders expands the signal into order skeletons for the matching accounts.
// Accounts whose main currency differs from the signal's main currency are
// skipped.
func (v *Signal) Orders(accounts *account.Registry) ([]*exchange.MarketOrder, error) {
	var targets []*account.Account
	if v.Account != "" {
		a, err := accounts.GetAccount(v.Exchange, v.Account)
		if err != nil {
			return nil, err
		}
		targets = append(targets, a)
	} else {
		targets = accounts.GetAccounts(v.Exchange)
		if len(targets) == 0 {
			return nil, fmt.Errorf("no accounts for exchange %q: %w", v.Exchange, account.ErrUnknownAccount)
		}
	}

	var orders []*exchange.MarketOrder
	for _, a := range targets {
		if v.MainCoin != "" && !strings.EqualFold(v.MainCoin, a.MainCurrency()) {
			continue
		}
		if strings.EqualFold(v.AltCoin, a.MainCurrency()) {
			continue
		}
		orders = append(orders, &exchange.MarketOrder{
			Exchange: a.Exchange(),
			Account:  a.Name(),
			MainCoin: a.MainCurrency(),
			AltCoin:  v.AltCoin,
			Type:     v.Type,
		})
	}
	return orders, nil
}
