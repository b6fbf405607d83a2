// Copyright (c) 2026 BVK Chaitanya

package signal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Message is a mail carrying one or more signal lines.
type Message struct {
	ID   string
	From string
	Date time.Time

	// Lines holds the subject followed by the plain text body lines.
	Lines []string
}

// Source produces signal messages. Every call returns the messages received
// since the previous call.
type Source interface {
	Fetch(ctx context.Context) ([]*Message, error)
}

type IMAPOptions struct {
	// Server is the imap server address in host:port form.
	Server string

	Username string
	Password string

	// Mailbox defaults to INBOX.
	Mailbox string

	// AllowedSenders holds the sender addresses accepted as signal sources.
	// All senders are accepted when empty.
	AllowedSenders []string

	// MaxAge limits the search to recent messages. Defaults to one day.
	MaxAge time.Duration

	Timeout time.Duration
}

func (v *IMAPOptions) setDefaults() {
	if v.Mailbox == "" {
		v.Mailbox = "INBOX"
	}
	if v.MaxAge == 0 {
		v.MaxAge = 24 * time.Hour
	}
	if v.Timeout == 0 {
		v.Timeout = time.Minute
	}
}

func (v *IMAPOptions) Check() error {
	if v.Server == "" {
		return fmt.Errorf("imap server address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(v.Server); err != nil {
		return fmt.Errorf("imap server address must be in host:port form: %w", err)
	}
	if v.Username == "" || v.Password == "" {
		return fmt.Errorf("imap username and password cannot be empty")
	}
	if v.MaxAge < 0 {
		return fmt.Errorf("max mail age cannot be negative")
	}
	return nil
}

// IMAPSource fetches unseen mails from an imap mailbox and marks them seen.
type IMAPSource struct {
	opts IMAPOptions
}

var _ Source = &IMAPSource{}

func NewIMAPSource(opts *IMAPOptions) (*IMAPSource, error) {
	v := *opts
	v.setDefaults()
	if err := v.Check(); err != nil {
		return nil, err
	}
	for i, s := range v.AllowedSenders {
		v.AllowedSenders[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return &IMAPSource{opts: v}, nil
}

func (s *IMAPSource) allowed(from string) bool {
	if len(s.opts.AllowedSenders) == 0 {
		return true
	}
	return slices.Contains(s.opts.AllowedSenders, strings.ToLower(from))
}

// dial connects and logs into the imap server and selects the mailbox.
func (s *IMAPSource) dial(ctx context.Context, readOnly bool) (*client.Client, error) {
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: s.opts.Timeout}
	c, err := client.DialWithDialerTLS(dialer, s.opts.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("could not connect to imap server %q: %w", s.opts.Server, err)
	}
	c.Timeout = s.opts.Timeout

	if err := c.Login(s.opts.Username, s.opts.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("could not login to imap server: %w", err)
	}
	if _, err := c.Select(s.opts.Mailbox, readOnly); err != nil {
		c.Logout()
		return nil, fmt.Errorf("could not select mailbox %q: %w", s.opts.Mailbox, err)
	}
	return c, nil
}

// Ping verifies the server address, the login and the mailbox without
// touching any mail.
func (s *IMAPSource) Ping(ctx context.Context) error {
	c, err := s.dial(ctx, true /* readOnly */)
	if err != nil {
		return err
	}
	return c.Logout()
}

func (s *IMAPSource) Fetch(ctx context.Context) (_ []*Message, status error) {
	c, err := s.dial(ctx, false /* readOnly */)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Logout(); err != nil && status == nil {
			slog.Warn("could not logout from imap server (ignored)", "server", s.opts.Server, "err", err)
		}
	}()

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().Add(-s.opts.MaxAge)
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqs, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search for unseen mails: %w", err)
	}
	if len(seqs) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqs...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var result []*Message
	seen := new(imap.SeqSet)
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		m, err := readMessage(r)
		if err != nil {
			slog.Warn("could not parse mail (skipped)", "seq", msg.SeqNum, "err", err)
			continue
		}
		if !s.allowed(m.From) {
			slog.Debug("ignoring mail from unknown sender", "from", m.From, "subject", firstLine(m.Lines))
			continue
		}
		seen.AddNum(msg.SeqNum)
		result = append(result, m)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("could not fetch mails: %w", err)
	}

	if !seen.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		flags := []interface{}{imap.SeenFlag}
		if err := c.Store(seen, item, flags, nil); err != nil {
			slog.Warn("could not mark mails as seen (ignored)", "err", err)
		}
	}
	return result, nil
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// readMessage decodes the headers and the plain text parts of a mail.
func readMessage(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("could not create mail reader: %w", err)
	}
	defer mr.Close()

	m := new(Message)
	if m.ID, err = mr.Header.MessageID(); err != nil {
		return nil, fmt.Errorf("could not decode message id: %w", err)
	}
	if m.Date, err = mr.Header.Date(); err != nil {
		m.Date = time.Time{}
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		m.From = from[0].Address
	}
	subject, err := mr.Header.Subject()
	if err != nil {
		return nil, fmt.Errorf("could not decode subject: %w", err)
	}
	m.Lines = append(m.Lines, strings.TrimSpace(subject))

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return m, nil
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		if ctype, _, _ := h.ContentType(); ctype != "text/plain" {
			continue
		}
		scanner := bufio.NewScanner(p.Body)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				m.Lines = append(m.Lines, line)
			}
		}
	}
	return m, nil
}
