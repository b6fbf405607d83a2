// Copyright (c) 2026 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/binance"
	"github.com/bvk/sigbot/bittrex"
	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/nonce"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Account struct {
	dataDir     string
	skipTesting bool

	config account.Config

	key    string
	secret string
}

func (c *Account) Purpose() string {
	return "Setup adds or updates an exchange account"
}

func (c *Account) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("account", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.config.Exchange, "exchange", "", "exchange name (bittrex or binance)")
	fset.StringVar(&c.config.Name, "name", "main", "account name")
	fset.StringVar(&c.config.MainCurrency, "main-currency", "BTC", "currency used to buy and sell altcoins")
	fset.StringVar(&c.config.BuyLimit, "buy-limit", "", "max main currency amount spent in a single buy")
	fset.StringVar(&c.config.StoplossPercent, "stoploss-percent", "", "sell when price drops this percent below the bought price")
	fset.StringVar(&c.config.TrailingStoplossPercent, "trailing-stoploss-percent", "", "sell when price drops this percent below its highest value")
	fset.StringVar(&c.config.MinimumGainPercent, "minimum-gain-percent", "", "minimum gain percent (saved in the configuration, not used for trading)")
	fset.StringVar(&c.key, "key", "", "exchange api key")
	fset.StringVar(&c.secret, "secret", "", "exchange api secret (read from terminal when empty)")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the api keys")
	return "account", fset, cli.CmdFunc(c.run)
}

func (c *Account) Description() string {
	return `

Command "account" saves the trading parameters of an exchange account in the
configuration file and its api keys in the secrets file. An existing account
with the same exchange and name is replaced.

  $ sigbot setup account --exchange=bittrex --name=main --main-currency=BTC \
      --buy-limit=0.01 --stoploss-percent=10 --trailing-stoploss-percent=5 \
      --minimum-gain-percent=3 --key=aabbcc...

API keys are verified by fetching the account balances unless the
--skip-testing flag is given.

`
}

func (c *Account) run(ctx context.Context, args []string) error {
	c.config.Exchange = strings.ToLower(c.config.Exchange)
	c.config.MainCurrency = strings.ToUpper(c.config.MainCurrency)
	if len(c.key) == 0 {
		return fmt.Errorf("api key flag is required")
	}

	dataDir, err := cmdutil.DataDir(c.dataDir)
	if err != nil {
		return err
	}
	configPath := cmdutil.ConfigPath(dataDir)
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	secretsPath := cmdutil.SecretsPath(dataDir)
	secrets, err := loadSecrets(secretsPath)
	if err != nil {
		return err
	}

	if len(c.secret) == 0 {
		if c.secret, err = readSecret("API secret"); err != nil {
			return err
		}
	}
	creds := &exchange.Credentials{Key: c.key, Secret: c.secret}
	a, err := account.New(&c.config, creds)
	if err != nil {
		return err
	}

	if !c.skipTesting {
		if err := testAccount(ctx, a); err != nil {
			return err
		}
	}

	secrets.SetCredentials(a.Exchange(), a.Name(), creds)
	cfg.Accounts = slices.DeleteFunc(cfg.Accounts, func(v *account.Config) bool {
		return strings.EqualFold(v.Exchange, a.Exchange()) && v.Name == a.Name()
	})
	cfg.Accounts = append(cfg.Accounts, a.Config())

	if err := saveSecrets(secretsPath, secrets); err != nil {
		return err
	}
	return config.SaveFile(configPath, cfg)
}

// testAccount verifies the api keys by fetching the account balances.
func testAccount(ctx context.Context, a *account.Account) error {
	var ex exchange.Exchange
	switch a.Exchange() {
	case bittrex.Name:
		v, err := bittrex.New(nonce.New(time.Now), nil /* opts */)
		if err != nil {
			return err
		}
		ex = v
	case binance.Name:
		v := binance.New(&binance.Options{DisableStream: true})
		defer v.Close()
		ex = v
	default:
		return fmt.Errorf("exchange %q: %w", a.Exchange(), exchange.ErrUnknownExchange)
	}

	balances, err := ex.GetBalances(ctx, a.Credentials())
	if err != nil {
		return fmt.Errorf("could not fetch balances of %s: %w", a, err)
	}
	fmt.Printf("%s has %s balance %s\n", a, a.MainCurrency(), balances[a.MainCurrency()])
	return nil
}
