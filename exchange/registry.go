// Copyright (c) 2026 BVK Chaitanya

package exchange

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry holds the exchange variants known to the process keyed by their
// lower-case names.
type Registry struct {
	mu sync.Mutex

	exchangeMap map[string]Exchange
}

func NewRegistry(exchanges ...Exchange) *Registry {
	r := &Registry{
		exchangeMap: make(map[string]Exchange),
	}
	for _, ex := range exchanges {
		r.exchangeMap[strings.ToLower(ex.Name())] = ex
	}
	return r
}

func (r *Registry) Add(ex Exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.exchangeMap[strings.ToLower(ex.Name())] = ex
}

func (r *Registry) Get(name string) (Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.exchangeMap[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("exchange %q: %w", name, ErrUnknownExchange)
	}
	return ex, nil
}

// Names returns the sorted list of registered exchange names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name := range r.exchangeMap {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
