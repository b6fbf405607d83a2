// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/bvk/sigbot/exchange"
	"github.com/bvk/sigbot/pushover"
	"github.com/bvk/sigbot/telegram"
)

// IMAPSecrets holds the mailbox login for the signal mails.
type IMAPSecrets struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Secrets is the layout of the secrets.json file. Account credentials are
// keyed by "exchange/account-name".
type Secrets struct {
	Accounts map[string]*exchange.Credentials `json:"accounts"`

	IMAP *IMAPSecrets `json:"imap"`

	Pushover *pushover.Keys    `json:"pushover"`
	Telegram *telegram.Secrets `json:"telegram"`
}

func AccountKey(exchangeName, accountName string) string {
	return path.Join(strings.ToLower(exchangeName), accountName)
}

func SecretsFromFile(fpath string) (*Secrets, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	s := new(Secrets)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("could not decode secrets file %q: %w", fpath, err)
	}
	return s, nil
}

func (v *Secrets) Check() error {
	for k, creds := range v.Accounts {
		if err := creds.Check(); err != nil {
			return fmt.Errorf("account %q: %w", k, err)
		}
	}
	if v.IMAP != nil {
		if len(v.IMAP.Username) == 0 || len(v.IMAP.Password) == 0 {
			return fmt.Errorf("imap username and password cannot be empty")
		}
	}
	if v.Pushover != nil {
		if err := v.Pushover.Check(); err != nil {
			return err
		}
	}
	if v.Telegram != nil {
		if err := v.Telegram.Check(); err != nil {
			return err
		}
	}
	return nil
}

// Credentials returns the api keys of an account.
func (v *Secrets) Credentials(exchangeName, accountName string) (*exchange.Credentials, error) {
	creds, ok := v.Accounts[AccountKey(exchangeName, accountName)]
	if !ok {
		return nil, fmt.Errorf("no credentials for account %s: %w", AccountKey(exchangeName, accountName), os.ErrNotExist)
	}
	return creds, nil
}

// SetCredentials adds or replaces the api keys of an account.
func (v *Secrets) SetCredentials(exchangeName, accountName string, creds *exchange.Credentials) {
	if v.Accounts == nil {
		v.Accounts = make(map[string]*exchange.Credentials)
	}
	v.Accounts[AccountKey(exchangeName, accountName)] = creds
}
