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

type Orders struct {
	cmdutil.ClientFlags

	limit int
}

func (c *Orders) Purpose() string {
	return "Prints the recent order placements from the journal"
}

func (c *Orders) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("orders", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	fset.IntVar(&c.limit, "limit", 20, "max number of journal entries to print")
	return "orders", fset, cli.CmdFunc(c.run)
}

func (c *Orders) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	if c.limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}
	resp, err := cmdutil.Post[api.OrdersListResponse](ctx, &c.ClientFlags, api.OrdersListPath, &api.OrdersListRequest{Limit: c.limit})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 8, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Time\tExchange\tAccount\tMarket\tSide\tQuantity\tRate\tStatus\tOrderID\t\n")
	for _, o := range resp.Orders {
		status := o.Status
		if len(o.Error) != 0 {
			status = fmt.Sprintf("%s (%s)", o.Status, o.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", o.Time.Local().Format(time.DateTime), o.Exchange, o.Account, o.Market, o.Side, o.Quantity, o.Rate, status, o.OrderID)
	}
	return tw.Flush()
}
