// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Positions struct {
	cmdutil.ClientFlags

	exchange string
	account  string
}

func (c *Positions) Purpose() string {
	return "Prints the positions under stoploss protection"
}

func (c *Positions) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("positions", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.StringVar(&c.exchange, "exchange", "", "when non-empty, prints positions only from this exchange")
	fset.StringVar(&c.account, "account", "", "when non-empty, prints positions only from this account")
	return "positions", fset, cli.CmdFunc(c.run)
}

func (c *Positions) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	req := &api.PositionsListRequest{
		Exchange: c.exchange,
		Account:  c.account,
	}
	resp, err := cmdutil.Post[api.PositionsListResponse](ctx, &c.ClientFlags, api.PositionsListPath, req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 8, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Exchange\tAccount\tAltCoin\tVerified\tBoughtPrice\tReferencePrice\tTSSLActivation\tLastChecked\t\n")
	for _, p := range resp.Positions {
		checked := "-"
		if !p.LastChecked.IsZero() {
			checked = p.LastChecked.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\t%s\t\n", p.Exchange, p.Account, p.AltCoin, p.Verified, p.BoughtPrice, p.ReferencePrice, p.TSSLActivationPrice, checked)
	}
	return tw.Flush()
}
