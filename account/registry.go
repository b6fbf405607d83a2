// Copyright (c) 2026 BVK Chaitanya

package account

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

type key struct {
	exchange, name string
}

// Registry owns all accounts keyed by the exchange and account name.
type Registry struct {
	mu sync.Mutex

	accountMap map[key]*Account
}

func NewRegistry(accounts ...*Account) (*Registry, error) {
	r := &Registry{
		accountMap: make(map[key]*Account),
	}
	for _, a := range accounts {
		if err := r.Add(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Add(a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{a.exchange, a.name}
	if _, ok := r.accountMap[k]; ok {
		return fmt.Errorf("account %s is repeated: %w", a, os.ErrExist)
	}
	r.accountMap[k] = a
	return nil
}

func (r *Registry) HasAccount(exchange, name string) bool {
	_, err := r.GetAccount(exchange, name)
	return err == nil
}

func (r *Registry) GetAccount(exchange, name string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accountMap[key{strings.ToLower(exchange), name}]
	if !ok {
		return nil, fmt.Errorf("account %s/%s: %w", exchange, name, ErrUnknownAccount)
	}
	return a, nil
}

// GetAccounts returns all accounts of an exchange sorted by their names.
func (r *Registry) GetAccounts(exchange string) []*Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	exchange = strings.ToLower(exchange)
	var accounts []*Account
	for k, a := range r.accountMap {
		if k.exchange == exchange {
			accounts = append(accounts, a)
		}
	}
	slices.SortFunc(accounts, func(a, b *Account) int {
		return strings.Compare(a.name, b.name)
	})
	return accounts
}

// Exchanges returns the sorted list of exchanges with at least one account.
func (r *Registry) Exchanges() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for k := range r.accountMap {
		if !slices.Contains(names, k.exchange) {
			names = append(names, k.exchange)
		}
	}
	slices.Sort(names)
	return names
}
