// Copyright (c) 2026 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Submit struct {
	cmdutil.ClientFlags
}

func (c *Submit) Purpose() string {
	return "Submits a trade signal to the running sigbot"
}

func (c *Submit) Description() string {
	return `

Command "submit" queues the orders for a signal without waiting for a signal
mail. Arguments use the same form as the mail subjects. Signals without an
account apply to all accounts of the exchange:

  $ sigbot submit sigbot bittrex/main BUY ETH-BTC
  $ sigbot submit sigbot binance SELL LTC

Orders are placed when the queue is flushed next.

`
}

func (c *Submit) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("submit", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "submit", fset, cli.CmdFunc(c.run)
}

func (c *Submit) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("signal argument is required")
	}
	req := &api.SignalSubmitRequest{
		Line: strings.Join(args, " "),
	}
	resp, err := cmdutil.Post[api.SignalSubmitResponse](ctx, &c.ClientFlags, api.SignalSubmitPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("queued %d order(s)\n", resp.NumOrders)
	return nil
}
