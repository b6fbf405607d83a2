// Copyright (c) 2026 BVK Chaitanya

package settings

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Set struct {
	cmdutil.ClientFlags
}

func (c *Set) Purpose() string {
	return "Updates a runtime setting of a running sigbot"
}

func (c *Set) Description() string {
	return `

Command "set" takes a setting name and the new value. Durations use the Go
duration syntax and the replace-orders flag takes a boolean:

  $ sigbot settings set stoploss-poll-interval 1m
  $ sigbot settings set replace-orders true

Changes take effect immediately and are saved in the database.

`
}

func (c *Set) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("set", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "set", fset, cli.CmdFunc(c.run)
}

func (c *Set) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("command takes two (name and value) arguments")
	}
	req := &api.SettingsSetRequest{
		Name:  args[0],
		Value: args[1],
	}
	resp, err := cmdutil.Post[api.SettingsSetResponse](ctx, &c.ClientFlags, api.SettingsSetPath, req)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s -> %s\n", req.Name, resp.OldValue, resp.NewValue)
	return nil
}
