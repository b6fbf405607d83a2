// Copyright (c) 2023 BVK Chaitanya

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

type Status struct {
	cmdutil.ClientFlags
}

func (c *Status) Purpose() string {
	return "Status prints the process and scheduler status of a running sigbot"
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	resp, err := cmdutil.Post[api.StatusResponse](ctx, &c.ClientFlags, api.StatusPath, &api.StatusRequest{})
	if err != nil {
		return err
	}

	fmt.Printf("Pid: %d\n", resp.Pid)
	fmt.Printf("Started: %s (uptime %s)\n", resp.StartTime.Format(time.RFC3339), resp.Uptime.Round(time.Second))
	fmt.Printf("Memory: %d KiB\n", resp.RSS/1024)
	fmt.Printf("CPU: %.2f%%\n", resp.CPUPercent)
	fmt.Printf("Exchanges: %v\n", resp.Exchanges)
	fmt.Printf("Accounts: %v\n", resp.Accounts)
	fmt.Printf("Positions: %d\n", resp.NumPositions)
	fmt.Printf("Queued orders: %d\n", resp.NumQueued)
	fmt.Printf("Replace orders: %t\n", resp.ReplaceOrders)
	fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 8, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Task\tInterval\t\n")
	for _, name := range sortedKeys(resp.Tasks) {
		fmt.Fprintf(tw, "%s\t%s\t\n", name, resp.Tasks[name])
	}
	return tw.Flush()
}
