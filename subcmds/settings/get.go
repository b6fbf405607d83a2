// Copyright (c) 2026 BVK Chaitanya

package settings

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Get struct {
	cmdutil.ClientFlags
}

func (c *Get) Purpose() string {
	return "Prints the runtime settings of a running sigbot"
}

func (c *Get) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "get", fset, cli.CmdFunc(c.run)
}

func (c *Get) run(ctx context.Context, args []string) error {
	req := &api.SettingsGetRequest{
		Names: args,
	}
	resp, err := cmdutil.Post[api.SettingsGetResponse](ctx, &c.ClientFlags, api.SettingsGetPath, req)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 8, 4, 2, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(resp.Values)) {
		fmt.Fprintf(tw, "%s\t%s\t\n", name, resp.Values[name])
	}
	return tw.Flush()
}
