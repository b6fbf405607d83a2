// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"maps"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bvk/sigbot/api"
	"github.com/bvk/sigbot/ctxutil"
	"github.com/bvk/sigbot/gobs"
	"github.com/bvk/sigbot/kvutil"
	"github.com/bvk/sigbot/syncmap"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type CmdFunc = cli.CmdFunc

type Command struct {
	Name    string
	Purpose string
	Handler CmdFunc
}

type Client struct {
	cg ctxutil.CloseGroup

	db kv.Database

	mu sync.Mutex

	bot *bot.Bot

	self *models.User

	secrets *Secrets

	state *gobs.TelegramState

	commandMap syncmap.Map[string, *Command]
}

var start = time.Now()

func New(ctx context.Context, db kv.Database, secrets *Secrets) (_ *Client, status error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}

	c := &Client{
		db:      db,
		secrets: secrets.Clone(),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(c.handler),
	}
	b, err := bot.New(secrets.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	defer func() {
		if status != nil {
			b.Close(ctx)
		}
	}()
	c.bot = b

	self, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch bot user: %w", err)
	}
	c.self = self

	state, err := kvutil.GetDB[gobs.TelegramState](ctx, db, c.stateKey())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		state = &gobs.TelegramState{
			UserChatIDMap: make(map[string]int64),
		}
	}
	c.state = state

	// Configure all commands.
	c.commandMap.Store("uptime", &Command{
		Purpose: "Prints sigbot uptime",
		Handler: c.uptime,
	})
	c.commandMap.Store("version", &Command{
		Purpose: "Prints version information",
		Handler: c.version,
	})

	if ok, err := c.bot.SetMyCommands(ctx, c.commands()); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("could not set bot commands")
	}

	c.cg.Go(func(ctx context.Context) {
		c.bot.Start(ctx)
	})
	return c, nil
}

func (c *Client) Close() error {
	c.cg.Close()
	return nil
}

func (c *Client) BotUserName() string {
	return c.self.Username
}

func (c *Client) OwnerUserName() string {
	return c.secrets.OwnerID
}

func (c *Client) AddCommand(ctx context.Context, name, purpose string, handler CmdFunc) error {
	if len(name) == 0 || len(purpose) == 0 || handler == nil {
		return os.ErrInvalid
	}
	if _, ok := c.commandMap.Load(name); ok {
		return os.ErrExist
	}
	cdata := &Command{
		Purpose: purpose,
		Handler: handler,
	}
	if _, loaded := c.commandMap.LoadOrStore(name, cdata); loaded {
		return os.ErrExist
	}
	if ok, err := c.bot.SetMyCommands(ctx, c.commands()); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("could not set bot commands")
	}
	return nil
}

// Service answers the bot commands that inspect or control sigbot.
type Service interface {
	Status(context.Context, *api.StatusRequest) (*api.StatusResponse, error)
	ListPositions(context.Context, *api.PositionsListRequest) (*api.PositionsListResponse, error)
	ListQueue(context.Context, *api.QueueListRequest) (*api.QueueListResponse, error)
	GetSettings(context.Context, *api.SettingsGetRequest) (*api.SettingsGetResponse, error)
	SetSetting(context.Context, *api.SettingsSetRequest) (*api.SettingsSetResponse, error)
	SubmitSignal(context.Context, *api.SignalSubmitRequest) (*api.SignalSubmitResponse, error)

	// SignalPrefix returns the lower case prefix of signal lines.
	SignalPrefix() string
}

// AddServiceCommands registers the sigbot commands answered by the service
// and publishes the updated command list to telegram.
func (c *Client) AddServiceCommands(ctx context.Context, svc Service) error {
	for _, cmd := range serviceCommands(svc) {
		if _, loaded := c.commandMap.LoadOrStore(cmd.Name, cmd); loaded {
			return fmt.Errorf("command %q: %w", cmd.Name, os.ErrExist)
		}
	}
	if ok, err := c.bot.SetMyCommands(ctx, c.commands()); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("could not set bot commands")
	}
	return nil
}

func serviceCommands(svc Service) []*Command {
	return []*Command{
		{
			Name:    "positions",
			Purpose: "Lists protected positions: /positions [exchange [account]]",
			Handler: func(ctx context.Context, args []string) error { return positionsCmd(ctx, svc, args) },
		},
		{
			Name:    "queue",
			Purpose: "Lists orders waiting for placement",
			Handler: func(ctx context.Context, args []string) error { return queueCmd(ctx, svc) },
		},
		{
			Name:    "settings",
			Purpose: "Prints or updates a setting: /settings [name [value]]",
			Handler: func(ctx context.Context, args []string) error { return settingsCmd(ctx, svc, args) },
		},
		{
			Name:    "submit",
			Purpose: "Submits a signal, e.g., /submit bittrex/main BUY ETH-BTC",
			Handler: func(ctx context.Context, args []string) error { return submitCmd(ctx, svc, args) },
		},
		{
			Name:    "status",
			Purpose: "Prints service status",
			Handler: func(ctx context.Context, args []string) error { return statusCmd(ctx, svc) },
		},
	}
}

func positionsCmd(ctx context.Context, svc Service, args []string) error {
	req := new(api.PositionsListRequest)
	if len(args) > 0 {
		req.Exchange = args[0]
	}
	if len(args) > 1 {
		req.Account = args[1]
	}
	resp, err := svc.ListPositions(ctx, req)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Positions) == 0 {
		fmt.Fprintln(stdout, "No positions are protected.")
		return nil
	}
	for _, p := range resp.Positions {
		fmt.Fprintf(stdout, "%s/%s %s bought %s reference %s", p.Exchange, p.Account, p.AltCoin, p.BoughtPrice.StringFixed(8), p.ReferencePrice.StringFixed(8))
		if !p.Verified {
			fmt.Fprintf(stdout, " (unverified)")
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func queueCmd(ctx context.Context, svc Service) error {
	resp, err := svc.ListQueue(ctx, new(api.QueueListRequest))
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	if len(resp.Orders) == 0 {
		fmt.Fprintln(stdout, "Order queue is empty.")
		return nil
	}
	for _, o := range resp.Orders {
		fmt.Fprintf(stdout, "%s/%s %s %s %s-%s @ %s\n", o.Exchange, o.Account, o.Side, o.Quantity, o.AltCoin, o.MainCoin, o.Rate)
	}
	return nil
}

func settingsCmd(ctx context.Context, svc Service, args []string) error {
	stdout := cli.Stdout(ctx)
	switch len(args) {
	case 0, 1:
		resp, err := svc.GetSettings(ctx, &api.SettingsGetRequest{Names: args})
		if err != nil {
			return err
		}
		for _, name := range slices.Sorted(maps.Keys(resp.Values)) {
			fmt.Fprintf(stdout, "%s = %s\n", name, resp.Values[name])
		}
		return nil
	case 2:
		resp, err := svc.SetSetting(ctx, &api.SettingsSetRequest{Name: args[0], Value: args[1]})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s = %s (was %s)\n", args[0], resp.NewValue, resp.OldValue)
		return nil
	}
	return fmt.Errorf("usage: /settings [name [value]]")
}

func submitCmd(ctx context.Context, svc Service, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /submit exchange/account SIDE ALT-MAIN")
	}
	line := strings.Join(args, " ")
	if prefix := svc.SignalPrefix(); !strings.HasPrefix(strings.ToLower(line), prefix) {
		line = prefix + " " + line
	}
	resp, err := svc.SubmitSignal(ctx, &api.SignalSubmitRequest{Line: line})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Enqueued %d orders.\n", resp.NumOrders)
	return nil
}

func statusCmd(ctx context.Context, svc Service) error {
	resp, err := svc.Status(ctx, new(api.StatusRequest))
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Uptime: %s\n", resp.Uptime.Truncate(time.Second))
	fmt.Fprintf(stdout, "Memory: %.1f MiB, CPU: %.1f%%\n", float64(resp.RSS)/(1<<20), resp.CPUPercent)
	fmt.Fprintf(stdout, "Accounts: %s\n", strings.Join(resp.Accounts, ", "))
	fmt.Fprintf(stdout, "Positions: %d, Queued: %d\n", resp.NumPositions, resp.NumQueued)
	fmt.Fprintf(stdout, "Replace stale orders: %t\n", resp.ReplaceOrders)
	return nil
}

func (c *Client) stateKey() string {
	return path.Join("/telegram", c.self.Username, "state")
}

// Commands returns the registered bot commands sorted by name.
func (c *Client) Commands() []string {
	var names []string
	for cmd := range c.commandMap.Range {
		names = append(names, cmd)
	}
	slices.Sort(names)
	return names
}

func (c *Client) commands() *bot.SetMyCommandsParams {
	var cmds []models.BotCommand
	for cmd, cdata := range c.commandMap.Range {
		cmds = append(cmds, models.BotCommand{
			Command:     cmd,
			Description: cdata.Purpose,
		})
	}
	slices.SortFunc(cmds, func(a, b models.BotCommand) int {
		return strings.Compare(a.Command, b.Command)
	})
	p := &bot.SetMyCommandsParams{
		Commands: cmds,
	}
	return p
}

func (c *Client) getCommand(msg *models.Message) (string, []string, CmdFunc, error) {
	if msg == nil || len(msg.Entities) == 0 {
		return "", nil, nil, os.ErrInvalid
	}
	entity := msg.Entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand {
		return "", nil, nil, os.ErrInvalid
	}
	if entity.Offset != 0 || entity.Length < 2 || entity.Length > len(msg.Text) {
		return "", nil, nil, os.ErrInvalid
	}
	if msg.Text[0] != '/' {
		return "", nil, nil, os.ErrInvalid
	}
	// Commands in groups are addressed as /cmd@botname.
	cmd, _, _ := strings.Cut(msg.Text[1:entity.Length], "@")
	args := strings.Fields(strings.TrimSpace(msg.Text[entity.Length:]))
	cdata, ok := c.commandMap.Load(cmd)
	if !ok {
		return cmd, nil, nil, os.ErrNotExist
	}
	return cmd, args, cdata.Handler, nil
}

func (c *Client) isValidUser(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if user == c.secrets.OwnerID || user == c.secrets.AdminID || slices.Contains(c.secrets.OtherIDs, user) {
		return true
	}
	return false
}

func (c *Client) SendMessage(ctx context.Context, at time.Time, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := at.Format("2006-01-02 15:04:05 MST") + " " + text
	slog.Info("sending notification", "at", at, "message", text)

	receivers := append([]string{c.secrets.OwnerID}, c.secrets.OtherIDs...)
	for _, receiver := range receivers {
		cid, ok := c.state.UserChatIDMap[receiver]
		if !ok {
			slog.Warn("could not notify receiver without chat id", "receiver", receiver)
			continue
		}

		m := &bot.SendMessageParams{
			ChatID: cid,
			Text:   msg,
		}
		if _, err := c.bot.SendMessage(ctx, m); err != nil {
			slog.Error("could not notify receiver (ignored)", "receiver", receiver, "err", err)
			continue
		}
	}
	return nil
}

func (c *Client) handler(ctx context.Context, bot *bot.Bot, update *models.Update) {
	if bot != c.bot {
		slog.Error("handler invoked with invalid bot value", "want", c.bot, "got", bot)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}
	sender := update.Message.From.Username
	if !c.isValidUser(sender) {
		slog.Warn("received message from non-owner (ignored)", "sender", sender, "message", update.Message.Text)
		return
	}

	if err := c.updateChatIDs(ctx, update); err != nil {
		slog.Warn("could not update chat id values (ignored)", "err", err)
	}

	if err := c.respond(ctx, update); err != nil {
		slog.Error("could not respond to user command (ignored)", "user", sender, "err", err)
		return
	}
}

func (c *Client) respond(ctx context.Context, update *models.Update) (status error) {
	True := true

	var reply string
	defer func() {
		if len(reply) != 0 {
			p := &bot.SendMessageParams{
				ChatID: update.Message.Chat.ID,
				Text:   reply,
				ReplyParameters: &models.ReplyParameters{
					MessageID: update.Message.ID,
				},
				LinkPreviewOptions: &models.LinkPreviewOptions{
					IsDisabled: &True,
				},
			}
			if _, err := c.bot.SendMessage(ctx, p); err != nil {
				status = err
			}
		}
	}()

	defer func() {
		if status != nil {
			reply = status.Error()
			status = nil
		}
	}()

	cmd, args, handler, err := c.getCommand(update.Message)
	if err != nil {
		return err
	}

	var sb strings.Builder
	if err := handler(cli.WithStdout(ctx, &sb), args); err != nil {
		sender := update.Message.From.Username
		slog.Error("could not handle user command (ignored)", "cmd", cmd, "user", sender, "err", err)
		return err
	}

	reply = sb.String()
	return nil
}

func (c *Client) updateChatIDs(ctx context.Context, update *models.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender := update.Message.From.Username
	if id, ok := c.state.UserChatIDMap[sender]; !ok || id != update.Message.Chat.ID {
		c.state.UserChatIDMap[sender] = update.Message.Chat.ID
		slog.Info("updating chat id message received from authorized user with chat id", "user", sender, "chat-id", update.Message.Chat.ID)

		if err := kvutil.SetDB(ctx, c.db, c.stateKey(), c.state); err != nil {
			slog.Error("could not save telegram state to the db", "err", err)
			return err
		}
	}
	return nil
}

func (c *Client) uptime(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)
	const day = 24 * time.Hour
	d := time.Since(start)
	if d < day {
		fmt.Fprintf(stdout, "%v", time.Since(start))
		return nil
	}
	days := d / day
	fmt.Fprintf(stdout, "%dd%v", days, d%day)
	return nil
}

func (c *Client) version(ctx context.Context, _ []string) error {
	stdout := cli.Stdout(ctx)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("could not read build information")
	}
	// Do not print version information for the dependencies. It can overflow the
	// Telegram size limits.
	fmt.Fprintln(stdout, "Go: ", info.GoVersion)
	fmt.Fprintln(stdout, "Binary Path: ", info.Path)
	fmt.Fprintln(stdout, "Main Module Path: ", info.Main.Path)
	fmt.Fprintln(stdout, "Main Module Version: ", info.Main.Version)
	fmt.Fprintln(stdout, "Main Module Checksum: ", info.Main.Sum)
	for _, s := range info.Settings {
		fmt.Fprintln(stdout, s.Key, ": ", s.Value)
	}
	return nil
}
