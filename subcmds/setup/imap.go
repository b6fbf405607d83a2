// Copyright (c) 2026 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/server"
	"github.com/bvk/sigbot/signal"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type IMAP struct {
	dataDir     string
	skipTesting bool

	server   string
	mailbox  string
	username string
	password string
}

func (c *IMAP) Purpose() string {
	return "Setup configures the mailbox for trade signal mails"
}

func (c *IMAP) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("imap", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.server, "server", "", "IMAP server address in host:port form")
	fset.StringVar(&c.mailbox, "mailbox", "", "mailbox name with the signal mails (default INBOX)")
	fset.StringVar(&c.username, "username", "", "IMAP login name")
	fset.StringVar(&c.password, "password", "", "IMAP login password (read from terminal when empty)")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "imap", fset, cli.CmdFunc(c.run)
}

func (c *IMAP) Description() string {
	return `

Command "imap" saves the mail server address in the configuration file and the
login in the secrets file. Signal mails are read from this mailbox.

  $ sigbot setup imap --server=imap.gmail.com:993 --username=me@gmail.com

`
}

func (c *IMAP) run(ctx context.Context, args []string) error {
	if len(c.server) == 0 || len(c.username) == 0 {
		return fmt.Errorf("server and username flags are required")
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

	if len(c.password) == 0 {
		if c.password, err = readSecret("IMAP password"); err != nil {
			return err
		}
	}
	secrets.IMAP = &server.IMAPSecrets{
		Username: c.username,
		Password: c.password,
	}
	cfg.Mail.Server = c.server
	if len(c.mailbox) != 0 {
		cfg.Mail.Mailbox = c.mailbox
	}

	if !c.skipTesting {
		source, err := signal.NewIMAPSource(&signal.IMAPOptions{
			Server:   cfg.Mail.Server,
			Username: c.username,
			Password: c.password,
			Mailbox:  cfg.Mail.Mailbox,
		})
		if err != nil {
			return err
		}
		if err := source.Ping(ctx); err != nil {
			return err
		}
	}

	if err := saveSecrets(secretsPath, secrets); err != nil {
		return err
	}
	return config.SaveFile(configPath, cfg)
}
