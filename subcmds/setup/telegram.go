// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/bvk/sigbot/telegram"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Telegram struct {
	dataDir     string
	skipTesting bool

	ownerID  string
	adminID  string
	botToken string
}

func (c *Telegram) Purpose() string {
	return "Setup configures Telegram service API parameters"
}

func (c *Telegram) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("telegram", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.ownerID, "owner-id", "", "Owner's telegram user id")
	fset.StringVar(&c.adminID, "admin-id", "", "Administrator's telegram user id")
	fset.StringVar(&c.botToken, "bot-token", "", "Telegram bot's authentication token")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "telegram", fset, cli.CmdFunc(c.run)
}

func (c *Telegram) Description() string {
	return `

Command "telegram" helps users configure notifications to their Telegram
account through a Telegram bot. The bot also accepts commands from the owner
to inspect positions, queued orders and settings.

Telegram configuration is optional. It can be configured as follows:

  $ sigbot setup telegram --owner-id=username --bot-token=USCJS2...TVP4KV

Bot token is read from the terminal when it is not given on the command line.

`
}

func (c *Telegram) run(ctx context.Context, args []string) error {
	dataDir, err := cmdutil.DataDir(c.dataDir)
	if err != nil {
		return err
	}
	secretsPath := cmdutil.SecretsPath(dataDir)
	secrets, err := loadSecrets(secretsPath)
	if err != nil {
		return err
	}

	if len(c.botToken) == 0 {
		if c.botToken, err = readSecret("Telegram bot token"); err != nil {
			return err
		}
	}
	secrets.Telegram = &telegram.Secrets{
		OwnerID:  c.ownerID,
		AdminID:  c.adminID,
		BotToken: c.botToken,
	}
	if err := secrets.Telegram.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		if err := waitForKey("Start a chat with telegram bot and then press any key"); err != nil {
			return err
		}

		client, err := telegram.New(ctx, kvmemdb.New(), secrets.Telegram)
		if err != nil {
			return err
		}
		defer client.Close()

		ctxutil.Sleep(ctx, time.Second)
		if err := client.SendMessage(ctx, time.Now(), "Test message from Telegram config setup; please ignore."); err != nil {
			return err
		}
	}
	return saveSecrets(secretsPath, secrets)
}

func waitForKey(prompt string) error {
	fmt.Println(prompt)
	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	b := make([]byte, 1)
	if _, err := os.Stdin.Read(b); err != nil {
		return err
	}
	return nil
}
