// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/daemonize"
	"github.com/bvk/sigbot/httputil"
	"github.com/bvk/sigbot/server"
	"github.com/bvk/sigbot/subcmds/cmdutil"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
)

type Run struct {
	cmdutil.ServerFlags

	background bool
	debug      bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof    bool
	noTelegram bool

	secretsPath string
	configPath  string
	dataDir     string
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the daemon in background")
	fset.BoolVar(&c.debug, "debug", false, "when true, debug messages are also logged")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.noTelegram, "no-telegram", false, "when true, telegram bot is not started")
	fset.StringVar(&c.secretsPath, "secrets-file", "", "path to credentials file")
	fset.StringVar(&c.configPath, "config-file", "", "path to the toml configuration file")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs sigbot in foreground or background"
}

func (c *Run) Description() string {
	return `

Command "run" starts the sigbot service. Sigbot reads trade signals from the
configured mailbox, sizes and places the orders on the exchanges and protects
the bought holdings with stoploss and trailing-stoploss sell orders. Protected
positions are saved in the database and resumed automatically on restart.

DATA DIRECTORY

All state lives in the data directory ($HOME/.sigbot by default):

    secrets.json   API keys and notification credentials
    sigbot.toml    accounts, mail options and setting defaults
    badger/        key-value database
    journal.db     history of order placements
    logs/          log files

SECRETS FILE

Exchange API keys are kept in a JSON file keyed by exchange and account name.
A example secrets file format is given below:

    {
        "accounts": {
            "bittrex/main": {
                "key": "111111111",
                "secret": "2222222222"
            }
        },
        "imap": {
            "username": "me@example.com",
            "password": "app-password"
        }
    }

Users should consult the exchange specific documentation to learn how to create
the API keys. Use "sigbot setup account" to add accounts.

`
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, err := cmdutil.DataDir(c.dataDir)
	if err != nil {
		return err
	}
	if len(c.secretsPath) == 0 {
		c.secretsPath = cmdutil.SecretsPath(dataDir)
	}
	secrets, err := server.SecretsFromFile(c.secretsPath)
	if err != nil {
		return err
	}
	if err := secrets.Check(); err != nil {
		return fmt.Errorf("secrets file %q is invalid: %w", c.secretsPath, err)
	}
	if len(c.configPath) == 0 {
		c.configPath = cmdutil.ConfigPath(dataDir)
	}
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return err
	}

	if ip := net.ParseIP(c.IP); ip == nil {
		return fmt.Errorf("invalid ip address")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port number")
	}
	addr := &net.TCPAddr{
		IP:   net.ParseIP(c.IP),
		Port: c.Port,
	}

	// Health checker for the background process initialization. Responding
	// server must report the pid of the child and not an older instance.
	check := func(ctx context.Context) error {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if _, err := fmt.Sscanf(string(data), "%d", new(int)); err != nil {
			return fmt.Errorf("unexpected pid response %q: %w", data, err)
		}
		return nil
	}

	if c.background {
		if err := daemonize.Daemonize(ctx, check); err != nil {
			return err
		}
	}

	backend, err := newLogBackend(cmdutil.LogsDir(dataDir), c.debug)
	if err != nil {
		return err
	}
	defer backend.Close()
	slog.SetDefault(slog.New(backend.Handler()))

	slog.Info("using data directory and secrets file", "data-dir", dataDir, "secrets", c.secretsPath, "config", c.configPath)

	lockPath := cmdutil.LockPath(dataDir)
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.Info("waiting for the previous instance to shutdown")
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Start HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	tcpServer, err := s.StartTCP(ctx, addr)
	if err != nil {
		return fmt.Errorf("could not start http server on %s: %w", addr, err)
	}
	defer s.Stop(tcpServer)

	if !c.noPprof {
		s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
		s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
		s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
	}

	// Open the database.
	bdb, err := badger.Open(badger.DefaultOptions(cmdutil.BadgerDir(dataDir)))
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, cmdutil.IsGoodKey)

	s.AddHandler("/db/", http.StripPrefix("/db", kvhttp.Handler(db)))

	sopts := &server.Options{
		Config:      cfg,
		JournalPath: cmdutil.JournalPath(dataDir),
		NoTelegram:  c.noTelegram,
	}
	bot, err := server.New(ctx, secrets, db, sopts)
	if err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("could not close the server cleanly (ignored)", "err", err)
		}
	}()

	apis := bot.HandlerMap()
	for k, v := range apis {
		s.AddHandler(k, v)
	}
	defer func() {
		for k := range apis {
			s.RemoveHandler(k)
		}
	}()

	if err := bot.Start(ctx); err != nil {
		return err
	}

	slog.Info("started sigbot server", "addr", addr)
	s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, fmt.Sprintf("%d", os.Getpid()))
	}))

	<-ctx.Done()
	slog.Info("sigbot server is shutting down")
	return nil
}

// newLogBackend creates the logs directory and a log file backend writing
// into it. Debug messages are logged only when debug is true.
func newLogBackend(logsDir string, debug bool) (*sglog.Backend, error) {
	if err := os.MkdirAll(logsDir, 0700); err != nil {
		return nil, fmt.Errorf("could not create logs directory %q: %w", logsDir, err)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs:    []string{logsDir},
		LogLinkDir: logsDir,
	})
	if debug {
		backend.SetLevel(slog.LevelDebug)
	}
	return backend, nil
}
