// Package market tracks the set of tradable symbols. A symbol is an
// immutable identifier created once; every mint and order references an
// existing symbol or is rejected before it reaches the matching engine.
package market

import (
	"sort"
	"sync"
	"time"

	"github.com/probo-exchange/probo/pkg/exchange"
)

// Symbol is the registry record for one binary market.
type Symbol struct {
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}

type Registry struct {
	mu      sync.RWMutex
	symbols map[string]Symbol
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]Symbol)}
}

// Create registers a new symbol, conflicting on duplicates.
func (r *Registry) Create(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.symbols[name]; ok {
		return exchange.ErrSymbolExists
	}
	r.symbols[name] = Symbol{Name: name, CreatedAt: time.Now().UnixMilli()}
	return nil
}

// Exists reports whether a symbol is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[name]
	return ok
}

// Get returns the registry record for a symbol.
func (r *Registry) Get(name string) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.symbols[name]
	return s, ok
}

// List returns all symbol records in lexical name order.
func (r *Registry) List() []Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Symbol, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered symbols.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

// Restore installs a symbol record verbatim (restart rebuild).
func (r *Registry) Restore(s Symbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[s.Name] = s
}
