package engine

import (
	"github.com/probo-exchange/probo/pkg/exchange"
	"github.com/probo-exchange/probo/pkg/storage"
)

// tokenRef names one token account touched by a scope.
type tokenRef struct {
	user    string
	symbol  string
	outcome exchange.Outcome
}

// txn is one transaction-coordinator scope: an undo journal over the
// in-memory state plus a staged storage batch. Either both commit or
// neither does. The scope, not the request, is the unit of cancellation
// safety: once commit begins the operation completes.
//
// Account balances are not staged eagerly. The scope records which
// accounts it dirtied and reads their values from the ledger at commit
// time, under the engine's persistence mutex. Disk then always receives
// the freshest ledger state, regardless of how concurrent scopes on the
// same user interleave.
type txn struct {
	e        *Engine
	batch    *storage.Batch
	undo     []func()
	currency map[string]struct{}
	tokens   map[tokenRef]struct{}
	done     bool
}

func (e *Engine) begin() *txn {
	return &txn{
		e:        e,
		batch:    e.store.NewBatch(),
		currency: make(map[string]struct{}),
		tokens:   make(map[tokenRef]struct{}),
	}
}

// add records the inverse of a mutation just applied.
func (t *txn) add(u func()) {
	t.undo = append(t.undo, u)
}

// touchCurrency marks a currency account for persistence at commit.
func (t *txn) touchCurrency(userID string) {
	t.currency[userID] = struct{}{}
}

// touchToken marks a token account for persistence at commit.
func (t *txn) touchToken(userID, symbol string, outcome exchange.Outcome) {
	t.tokens[tokenRef{userID, symbol, outcome}] = struct{}{}
}

// commit materializes the dirtied accounts into the batch and flushes it
// durably. If staging or the disk write fails the in-memory mutations
// are unwound and the scope reports an internal fault, leaving no
// partial state for the caller to observe.
func (t *txn) commit() error {
	t.e.persistMu.Lock()
	defer t.e.persistMu.Unlock()

	for userID := range t.currency {
		bal, _ := t.e.ledger.CurrencyBalance(userID)
		if err := t.batch.PutCurrency(userID, bal); err != nil {
			return t.fail("stage currency account: " + err.Error())
		}
	}
	for ref := range t.tokens {
		bal := t.e.ledger.TokenBalance(ref.user, ref.symbol, ref.outcome)
		if err := t.batch.PutToken(ref.user, ref.symbol, ref.outcome, bal); err != nil {
			return t.fail("stage token account: " + err.Error())
		}
	}
	if err := t.batch.Commit(); err != nil {
		return t.fail("transaction commit failed: " + err.Error())
	}
	t.done = true
	return nil
}

func (t *txn) fail(msg string) error {
	t.unwind()
	_ = t.batch.Close()
	t.done = true
	return exchange.Internal(msg)
}

// rollback discards the scope. Safe to defer alongside a successful
// commit; it is a no-op once committed.
func (t *txn) rollback() {
	if t.done {
		return
	}
	t.unwind()
	_ = t.batch.Close()
	t.done = true
}

func (t *txn) unwind() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}
