// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bvk/sigbot/accessor"
	"github.com/bvk/sigbot/account"
	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/binance"
	"github.com/bvk/sigbot/bittrex"
	"github.com/bvk/sigbot/boughtprice"
	"github.com/bvk/sigbot/config"
	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/event"
	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/httputil"
	"github.com/bvk/sigbot/journal"
	"github.com/bvk/sigbot/nonce"
	"github.com/bvk/sigbot/orderbuilder"
	"github.com/bvk/sigbot/orderqueue"
	"github.com/bvk/sigbot/pushover"
	"github.com/bvk/sigbot/replacer"
	"github.com/bvk/sigbot/scheduler"
	"github.com/bvk/sigbot/signal"
	"github.com/bvk/sigbot/stoploss"
	"github.com/bvk/sigbot/telegram"
	"github.com/bvkgo/kv"
)

// Names of the periodic tasks.
const (
	MailCheckTask       = "mail-check"
	StoplossPollTask    = "stoploss-poll"
	OpenOrdersCheckTask = "open-orders-check"
	QueueFlushTask      = "queue-flush"
)

// taskSettings maps the periodic tasks to the settings controlling their
// intervals.
var taskSettings = map[string]string{
	MailCheckTask:       config.MailPollInterval,
	StoplossPollTask:    config.StoplossPollInterval,
	OpenOrdersCheckTask: config.OpenOrdersPollInterval,
	QueueFlushTask:      config.QueueFlushInterval,
}

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	startTime time.Time

	db kv.Database

	bus      *event.Bus
	settings *config.Store

	exchanges *exchange.Registry
	accounts  *account.Registry

	prices    *accessor.Prices
	balances  *accessor.Balances
	histories *accessor.Histories

	builder   *orderbuilder.Builder
	estimator *boughtprice.Estimator

	journal *journal.Journal
	queue   *orderqueue.Queue

	stoploss  *stoploss.Service
	processor *signal.Processor
	replacer  *replacer.Replacer
	scheduler *scheduler.Scheduler

	telegramClient *telegram.Client
	notifiers      []Notifier

	closers []func()
}

// New creates the sigbot service with all its components. Periodic tasks
// are not started till the Start method is called.
func New(ctx context.Context, secrets *Secrets, db kv.Database, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if secrets == nil {
		secrets = new(Secrets)
	}
	if err := secrets.Check(); err != nil {
		return nil, err
	}

	s := &Server{
		opts:      *opts,
		startTime: time.Now(),
		db:        db,
		bus:       event.NewBus(),
		scheduler: scheduler.New(),
		notifiers: opts.Notifiers,
	}
	defer func() {
		if status != nil {
			s.Close()
		}
	}()

	cfg := opts.Config
	defaults, err := cfg.Defaults()
	if err != nil {
		return nil, err
	}
	store, err := config.NewStore(ctx, db, s.bus, defaults)
	if err != nil {
		return nil, err
	}
	s.settings = store

	if s.accounts, err = loadAccounts(cfg, secrets); err != nil {
		return nil, err
	}
	if s.exchanges, err = s.createExchanges(cfg); err != nil {
		return nil, err
	}

	s.prices = accessor.NewPrices(s.exchanges, s.ttl(config.TickerTTL), nil)
	s.balances = accessor.NewBalances(s.exchanges, s.ttl(config.BalanceTTL), nil)
	s.histories = accessor.NewHistories(s.exchanges, s.ttl(config.HistoryTTL), nil)
	s.builder = orderbuilder.New(s.exchanges, s.accounts, s.prices, s.balances)
	s.estimator = boughtprice.New(s.exchanges, s.histories)

	qopts := &orderqueue.Options{
		Invalidators: []orderqueue.Invalidator{s.balances, s.histories},
	}
	if len(opts.JournalPath) != 0 {
		j, err := journal.Open(ctx, opts.JournalPath)
		if err != nil {
			return nil, err
		}
		s.journal = j
		s.closers = append(s.closers, func() { j.Close() })
		qopts.Journal = j
	}
	s.queue = orderqueue.New(s.accounts, s.exchanges, s.bus, qopts)

	components := &stoploss.Components{
		Accounts:  s.accounts,
		Exchanges: s.exchanges,
		Prices:    s.prices,
		Balances:  s.balances,
		Estimator: s.estimator,
		Queue:     s.queue,
	}
	s.stoploss = stoploss.New(db, components, &stoploss.Options{OnInvalid: s.onInvalidPosition})

	source, err := s.signalSource(cfg, secrets)
	if err != nil {
		return nil, err
	}
	maxMailAge, err := cfg.MaxMailAge()
	if err != nil {
		return nil, fmt.Errorf("could not parse mail max age: %w", err)
	}
	popts := &signal.ProcessorOptions{
		Prefix: cfg.Mail.SubjectPrefix,
		MaxAge: maxMailAge,
	}
	s.processor = signal.NewProcessor(db, source, s.accounts, s.builder, s.queue, popts)

	ropts := &replacer.Options{
		MaxAge:  s.ttl(config.OpenOrderMaxAge),
		Enabled: store.Settings().ReplaceOrders,
	}
	s.replacer = replacer.New(s.accounts, s.exchanges, s.builder, s.queue, ropts)

	s.bus.Handle(s.scheduler.HandleEvent)
	s.bus.Handle(s.replacer.HandleEvent)
	s.bus.Handle(func(e event.Event) {
		s.stoploss.HandleEvent(s.cg.Context(), e)
	})

	if secrets.Pushover != nil {
		client, err := pushover.New(secrets.Pushover, nil)
		if err != nil {
			return nil, err
		}
		s.notifiers = append(s.notifiers, client)
	}
	if secrets.Telegram != nil && !opts.NoTelegram {
		client, err := telegram.New(ctx, db, secrets.Telegram)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		s.telegramClient = client
		s.closers = append(s.closers, func() { client.Close() })
		s.notifiers = append(s.notifiers, client)
	}
	return s, nil
}

// Close stops the periodic tasks and releases all resources. Orders still
// in the queue are dropped.
func (s *Server) Close() error {
	s.scheduler.Close()
	s.cg.Close()
	s.bus.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if n := s.queueLen(); n != 0 {
		slog.Warn("dropping queued orders on shutdown", "count", n)
	}
	return nil
}

func (s *Server) queueLen() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

func (s *Server) ttl(name string) accessor.TTLFunc {
	return func() time.Duration {
		return s.settings.Duration(name)
	}
}

func loadAccounts(cfg *config.File, secrets *Secrets) (*account.Registry, error) {
	registry, err := account.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, acfg := range cfg.Accounts {
		creds, err := secrets.Credentials(acfg.Exchange, acfg.Name)
		if err != nil {
			return nil, err
		}
		a, err := account.New(acfg, creds)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(a); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (s *Server) createExchanges(cfg *config.File) (*exchange.Registry, error) {
	if len(s.opts.Exchanges) != 0 {
		return exchange.NewRegistry(s.opts.Exchanges...), nil
	}

	registry := exchange.NewRegistry()
	for _, name := range s.accounts.Exchanges() {
		switch name {
		case bittrex.Name:
			ex, err := bittrex.New(nonce.New(time.Now), nil)
			if err != nil {
				return nil, fmt.Errorf("could not create bittrex client: %w", err)
			}
			registry.Add(ex)
		case binance.Name:
			ex := binance.New(&binance.Options{QuoteCurrencies: cfg.Binance.QuoteCurrencies})
			s.closers = append(s.closers, ex.Close)
			registry.Add(ex)
		default:
			return nil, fmt.Errorf("exchange %q of the accounts: %w", name, exchange.ErrUnknownExchange)
		}
	}
	return registry, nil
}

func (s *Server) signalSource(cfg *config.File, secrets *Secrets) (signal.Source, error) {
	if s.opts.SignalSource != nil {
		return s.opts.SignalSource, nil
	}
	if len(cfg.Mail.Server) == 0 {
		slog.Info("signal mail server is not configured; signals can only be submitted directly")
		return nil, nil
	}
	if secrets.IMAP == nil {
		return nil, fmt.Errorf("imap credentials are required for the mail server %q: %w", cfg.Mail.Server, os.ErrInvalid)
	}
	maxAge, err := cfg.MaxMailAge()
	if err != nil {
		return nil, fmt.Errorf("could not parse mail max age: %w", err)
	}
	iopts := &signal.IMAPOptions{
		Server:         cfg.Mail.Server,
		Username:       secrets.IMAP.Username,
		Password:       secrets.IMAP.Password,
		Mailbox:        cfg.Mail.Mailbox,
		AllowedSenders: cfg.Mail.AllowedSenders,
		MaxAge:         maxAge,
	}
	return signal.NewIMAPSource(iopts)
}

// Start restores the protected positions, starts the periodic tasks and
// the alert notifications.
func (s *Server) Start(ctx context.Context) error {
	if err := s.stoploss.StartAll(ctx); err != nil {
		return fmt.Errorf("could not start stoploss protection: %w", err)
	}

	tasks := []struct {
		name string
		fn   scheduler.Func
	}{
		{MailCheckTask, s.checkMail},
		{StoplossPollTask, s.pollStoploss},
		{OpenOrdersCheckTask, s.checkOpenOrders},
		{QueueFlushTask, s.flushQueue},
	}
	for _, t := range tasks {
		setting := taskSettings[t.name]
		if err := s.scheduler.Schedule(t.name, s.settings.Duration(setting), t.fn); err != nil {
			return fmt.Errorf("could not schedule task %q: %w", t.name, err)
		}
		s.scheduler.Bind(setting, t.name)
	}

	if len(s.notifiers) != 0 {
		receiver, err := s.bus.Subscribe()
		if err != nil {
			return fmt.Errorf("could not subscribe to events: %w", err)
		}
		s.cg.Go(func(ctx context.Context) {
			defer receiver.Close()
			if err := s.sendAlerts(ctx, receiver); err != nil && !errors.Is(err, os.ErrClosed) {
				slog.Error("alert notifications have stopped", "err", err)
			}
		})
	}

	if s.telegramClient != nil {
		if err := s.telegramClient.AddServiceCommands(ctx, telegramService{s}); err != nil {
			return fmt.Errorf("could not add telegram commands: %w", err)
		}
	}

	slog.Info("started sigbot service", "accounts", len(s.accountNames()), "positions", s.stoploss.Len())
	return nil
}

func (s *Server) checkMail(ctx context.Context) {
	n, err := s.processor.Check(ctx)
	if err != nil {
		slog.Warn("could not check signal mails (will retry)", "err", err)
		return
	}
	if n != 0 {
		slog.Info("enqueued orders for the mail signals", "orders", n)
	}
}

func (s *Server) pollStoploss(ctx context.Context) {
	if err := s.stoploss.PollAll(ctx); err != nil {
		slog.Warn("could not poll all positions (will retry)", "err", err)
	}
}

func (s *Server) checkOpenOrders(ctx context.Context) {
	if _, err := s.replacer.Check(ctx); err != nil {
		slog.Warn("could not check all open orders (will retry)", "err", err)
	}
}

func (s *Server) flushQueue(ctx context.Context) {
	if s.queue.Len() == 0 {
		return
	}
	s.queue.Flush(ctx)
}

func (s *Server) accountNames() []string {
	var names []string
	for _, exName := range s.accounts.Exchanges() {
		for _, a := range s.accounts.GetAccounts(exName) {
			names = append(names, a.String())
		}
	}
	return names
}

// HandlerMap returns the http api handlers keyed by their paths.
func (s *Server) HandlerMap() map[string]http.Handler {
	return map[string]http.Handler{
		api.PositionsListPath: httputil.HandlerFunc(s.doPositionsList),
		api.QueueListPath:     httputil.HandlerFunc(s.doQueueList),
		api.SettingsGetPath:   httputil.HandlerFunc(s.doSettingsGet),
		api.SettingsSetPath:   httputil.HandlerFunc(s.doSettingsSet),
		api.SignalSubmitPath:  httputil.HandlerFunc(s.doSignalSubmit),
		api.OrdersListPath:    httputil.HandlerFunc(s.doOrdersList),
		api.StatusPath:        httputil.HandlerFunc(s.doStatus),
	}
}
