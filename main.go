// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/sigbot/subcmds"
	"github.com/bvk/sigbot/subcmds/db"
	"github.com/bvk/sigbot/subcmds/settings"
	"github.com/bvk/sigbot/subcmds/setup"
	"github.com/visvasity/cli"
)

func main() {
	dbCmds := []cli.Command{
		new(db.Get),
		new(db.Delete),
		new(db.List),
		new(db.Backup),
		new(db.Restore),
	}

	settingsCmds := []cli.Command{
		new(settings.Get),
		new(settings.Set),
	}

	setupCmds := []cli.Command{
		new(setup.Account),
		new(setup.IMAP),
		new(setup.Telegram),
		new(setup.PushOver),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Positions),
		new(subcmds.Submit),
		new(subcmds.Orders),
		cli.NewGroup("settings", "View/update runtime settings", settingsCmds...),
		cli.NewGroup("setup", "Configure accounts and notifications", setupCmds...),
		cli.NewGroup("db", "View/update database directly", dbCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
