// Package storage persists the exchange state in Pebble: currency and
// token accounts, the symbol registry, resting orders, and trades. Every
// mutating operation in the engine stages its writes into one Batch and
// commits it atomically, so a crash never leaves a half-applied scope on
// disk. A full scan at startup reconstructs the exact ledger and book
// state prior to shutdown.
package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/probo-exchange/probo/pkg/exchange"
	"github.com/probo-exchange/probo/pkg/exchange/market"
)

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the Pebble database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutCurrency persists one currency account outside a batch (user
// registration and onramp go through here).
func (s *Store) PutCurrency(userID string, bal exchange.Balance) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return fmt.Errorf("marshal currency account: %w", err)
	}
	if err := s.db.Set(balanceKey(userID), data, pebble.Sync); err != nil {
		return fmt.Errorf("save currency account: %w", err)
	}
	return nil
}

// PutSymbol persists one symbol registry record.
func (s *Store) PutSymbol(sym market.Symbol) error {
	data, err := json.Marshal(sym)
	if err != nil {
		return fmt.Errorf("marshal symbol: %w", err)
	}
	if err := s.db.Set(symbolKey(sym.Name), data, pebble.Sync); err != nil {
		return fmt.Errorf("save symbol: %w", err)
	}
	return nil
}

// Batch stages the writes of one transaction scope. Nothing is visible
// on disk until Commit.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) PutCurrency(userID string, bal exchange.Balance) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	return b.batch.Set(balanceKey(userID), data, nil)
}

func (b *Batch) PutToken(userID, symbol string, outcome exchange.Outcome, bal exchange.Balance) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return err
	}
	return b.batch.Set(tokenKey(userID, symbol, outcome), data, nil)
}

func (b *Batch) PutOrder(o *exchange.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.batch.Set(orderKey(o), data, nil)
}

func (b *Batch) DeleteOrder(o *exchange.Order) error {
	return b.batch.Delete(orderKey(o), nil)
}

func (b *Batch) PutTrade(t *exchange.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.batch.Set(tradeKey(t), data, nil)
}

// Commit flushes the batch durably and atomically.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards an uncommitted batch.
func (b *Batch) Close() error {
	return b.batch.Close()
}

// TokenAccount is one scanned token balance row.
type TokenAccount struct {
	UserID  string
	Symbol  string
	Outcome exchange.Outcome
	Balance exchange.Balance
}

// Snapshot is the full persisted state, as loaded at startup.
type Snapshot struct {
	Currency map[string]exchange.Balance
	Tokens   []TokenAccount
	Symbols  []market.Symbol
	Orders   []*exchange.Order // sorted by arrival sequence
	MaxSeq   uint64
}

// Load scans the database and reconstructs the persisted state.
func (s *Store) Load() (*Snapshot, error) {
	snap := &Snapshot{Currency: make(map[string]exchange.Balance)}

	if err := s.scan([]byte(prefixBalance), func(key, value []byte) error {
		var bal exchange.Balance
		if err := json.Unmarshal(value, &bal); err != nil {
			return fmt.Errorf("unmarshal currency account %q: %w", key, err)
		}
		snap.Currency[userFromBalanceKey(key)] = bal
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan([]byte(prefixToken), func(key, value []byte) error {
		userID, symbol, outcome, err := parseTokenKey(key)
		if err != nil {
			return err
		}
		var bal exchange.Balance
		if err := json.Unmarshal(value, &bal); err != nil {
			return fmt.Errorf("unmarshal token account %q: %w", key, err)
		}
		snap.Tokens = append(snap.Tokens, TokenAccount{userID, symbol, outcome, bal})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan([]byte(prefixSymbol), func(key, value []byte) error {
		var sym market.Symbol
		if err := json.Unmarshal(value, &sym); err != nil {
			return fmt.Errorf("unmarshal symbol %q: %w", key, err)
		}
		snap.Symbols = append(snap.Symbols, sym)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.scan([]byte(prefixOrder), func(key, value []byte) error {
		var o exchange.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("unmarshal order %q: %w", key, err)
		}
		snap.Orders = append(snap.Orders, &o)
		if o.Seq > snap.MaxSeq {
			snap.MaxSeq = o.Seq
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// Keys sort per symbol, not globally; arrival order is global.
	sort.Slice(snap.Orders, func(i, j int) bool {
		return snap.Orders[i].Seq < snap.Orders[j].Seq
	})

	return snap, nil
}

// RecentTrades returns the newest trades for a symbol, newest first.
func (s *Store) RecentTrades(symbol string, limit int) ([]*exchange.Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []*exchange.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t exchange.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade %q: %w", iter.Key(), err)
		}
		trades = append(trades, &t)
	}
	return trades, nil
}

func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterator for %q: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
