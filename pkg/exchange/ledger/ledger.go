// Package ledger tracks per-user currency accounts and per-(user, symbol,
// outcome) token accounts, each split into available and locked legs.
//
// Every mutating method is atomic under the ledger mutex and returns an
// undo closure that restores the exact prior state. The transaction
// coordinator collects those closures and runs them in reverse when a
// scope fails, so a business rejection leaves balances byte-for-byte
// unchanged.
package ledger

import (
	"math"
	"sync"

	"github.com/probo-exchange/probo/pkg/exchange"
)

type tokenKey struct {
	user    string
	symbol  string
	outcome exchange.Outcome
}

type Ledger struct {
	mu       sync.RWMutex
	currency map[string]*exchange.Balance
	tokens   map[tokenKey]*exchange.Balance
}

func New() *Ledger {
	return &Ledger{
		currency: make(map[string]*exchange.Balance),
		tokens:   make(map[tokenKey]*exchange.Balance),
	}
}

// Undo reverses a single committed mutation. Undos are themselves atomic
// and must be applied in reverse order of the mutations they undo.
type Undo func()

func noop() {}

// CreateUser opens an empty currency account. Registration is the
// existence of this account; every other operation requires it.
func (l *Ledger) CreateUser(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.currency[userID]; ok {
		return exchange.ErrUserExists
	}
	l.currency[userID] = &exchange.Balance{}
	return nil
}

// HasUser reports whether a currency account exists for the user.
func (l *Ledger) HasUser(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.currency[userID]
	return ok
}

// Deposit credits currency to a user's available balance (onramp).
// Returns the new total available balance.
func (l *Ledger) Deposit(userID string, amount int64) (int64, Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.currency[userID]
	if !ok {
		return 0, nil, exchange.ErrUserNotFound
	}
	acc.Available += amount
	return acc.Available, func() {
		l.mu.Lock()
		acc.Available -= amount
		l.mu.Unlock()
	}, nil
}

// ReserveCurrency moves amount from available to locked, failing with
// INSUFFICIENT_FUNDS when available is short. Balances are untouched on
// failure.
func (l *Ledger) ReserveCurrency(userID string, amount int64) (Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.currency[userID]
	if !ok {
		return nil, exchange.ErrUserNotFound
	}
	if acc.Available < amount {
		return nil, exchange.ErrInsufficientFunds
	}
	acc.Available -= amount
	acc.Locked += amount
	return func() {
		l.mu.Lock()
		acc.Available += amount
		acc.Locked -= amount
		l.mu.Unlock()
	}, nil
}

// ReleaseCurrency moves amount from locked back to available. Used on
// cancel and to refund the locked excess when a buy settles below its
// limit. A zero amount is a no-op.
func (l *Ledger) ReleaseCurrency(userID string, amount int64) (Undo, error) {
	if amount == 0 {
		return noop, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.currency[userID]
	if !ok {
		return nil, exchange.ErrUserNotFound
	}
	if acc.Locked < amount {
		return nil, exchange.Internal("release exceeds locked currency")
	}
	acc.Locked -= amount
	acc.Available += amount
	return func() {
		l.mu.Lock()
		acc.Locked += amount
		acc.Available -= amount
		l.mu.Unlock()
	}, nil
}

// SettleCurrency moves amount out of the debtor's locked leg into the
// creditor's available leg. The debit side must already hold the funds
// locked; settlement never touches its available leg.
func (l *Ledger) SettleCurrency(debitUser, creditUser string, amount int64) (Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	debit, ok := l.currency[debitUser]
	if !ok {
		return nil, exchange.ErrUserNotFound
	}
	credit, ok := l.currency[creditUser]
	if !ok {
		return nil, exchange.ErrUserNotFound
	}
	if debit.Locked < amount {
		return nil, exchange.Internal("settlement exceeds locked currency")
	}
	debit.Locked -= amount
	credit.Available += amount
	return func() {
		l.mu.Lock()
		debit.Locked += amount
		credit.Available -= amount
		l.mu.Unlock()
	}, nil
}

// token returns the token account, creating a zero account on first touch.
// Caller holds l.mu.
func (l *Ledger) token(userID, symbol string, outcome exchange.Outcome) *exchange.Balance {
	k := tokenKey{userID, symbol, outcome}
	acc, ok := l.tokens[k]
	if !ok {
		acc = &exchange.Balance{}
		l.tokens[k] = acc
	}
	return acc
}

// ReserveTokens locks qty tokens against a sell order, failing with
// INSUFFICIENT_STOCK when the available leg is short.
func (l *Ledger) ReserveTokens(userID, symbol string, outcome exchange.Outcome, qty int64) (Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.token(userID, symbol, outcome)
	if acc.Available < qty {
		return nil, exchange.ErrInsufficientStock
	}
	acc.Available -= qty
	acc.Locked += qty
	return func() {
		l.mu.Lock()
		acc.Available += qty
		acc.Locked -= qty
		l.mu.Unlock()
	}, nil
}

// ReleaseTokens moves qty from locked back to available (cancelled sell).
func (l *Ledger) ReleaseTokens(userID, symbol string, outcome exchange.Outcome, qty int64) (Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.token(userID, symbol, outcome)
	if acc.Locked < qty {
		return nil, exchange.Internal("release exceeds locked tokens")
	}
	acc.Locked -= qty
	acc.Available += qty
	return func() {
		l.mu.Lock()
		acc.Locked += qty
		acc.Available -= qty
		l.mu.Unlock()
	}, nil
}

// SettleTokens moves qty out of the seller's locked leg into the buyer's
// available leg. Trades move tokens, they never create or destroy them.
func (l *Ledger) SettleTokens(debitUser, creditUser, symbol string, outcome exchange.Outcome, qty int64) (Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	debit := l.token(debitUser, symbol, outcome)
	if debit.Locked < qty {
		return nil, exchange.Internal("settlement exceeds locked tokens")
	}
	credit := l.token(creditUser, symbol, outcome)
	debit.Locked -= qty
	credit.Available += qty
	return func() {
		l.mu.Lock()
		debit.Locked += qty
		credit.Available -= qty
		l.mu.Unlock()
	}, nil
}

// Mint debits qty*costPerUnit from the user's available currency and
// credits qty to both the YES and the NO token account for the symbol.
// This is the only operation that creates tokens, which keeps total YES
// supply equal to total NO supply for every symbol.
// Returns the remaining available currency balance.
func (l *Ledger) Mint(userID, symbol string, qty, costPerUnit int64) (int64, Undo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.currency[userID]
	if !ok {
		return 0, nil, exchange.ErrUserNotFound
	}
	// A cost that wraps int64 can never be covered; rejecting here keeps
	// the funds check sound for any positive inputs.
	if costPerUnit > 0 && qty > math.MaxInt64/costPerUnit {
		return 0, nil, exchange.ErrInsufficientFunds
	}
	cost := qty * costPerUnit
	if acc.Available < cost {
		return 0, nil, exchange.ErrInsufficientFunds
	}
	yes := l.token(userID, symbol, exchange.Yes)
	no := l.token(userID, symbol, exchange.No)

	acc.Available -= cost
	yes.Available += qty
	no.Available += qty
	return acc.Available, func() {
		l.mu.Lock()
		acc.Available += cost
		yes.Available -= qty
		no.Available -= qty
		l.mu.Unlock()
	}, nil
}

// CurrencyBalance returns a copy of the user's currency account.
func (l *Ledger) CurrencyBalance(userID string) (exchange.Balance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.currency[userID]
	if !ok {
		return exchange.Balance{}, false
	}
	return *acc, true
}

// TokenBalance returns a copy of one token account (zero if untouched).
func (l *Ledger) TokenBalance(userID, symbol string, outcome exchange.Outcome) exchange.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if acc, ok := l.tokens[tokenKey{userID, symbol, outcome}]; ok {
		return *acc
	}
	return exchange.Balance{}
}

// CurrencySnapshot copies every currency account (read path for the
// balances endpoint).
func (l *Ledger) CurrencySnapshot() map[string]exchange.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]exchange.Balance, len(l.currency))
	for user, acc := range l.currency {
		out[user] = *acc
	}
	return out
}

// TokenSnapshot copies every token account, keyed user -> symbol -> outcome.
func (l *Ledger) TokenSnapshot() map[string]map[string]map[exchange.Outcome]exchange.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]map[string]map[exchange.Outcome]exchange.Balance)
	for k, acc := range l.tokens {
		bySymbol, ok := out[k.user]
		if !ok {
			bySymbol = make(map[string]map[exchange.Outcome]exchange.Balance)
			out[k.user] = bySymbol
		}
		byOutcome, ok := bySymbol[k.symbol]
		if !ok {
			byOutcome = make(map[exchange.Outcome]exchange.Balance)
			bySymbol[k.symbol] = byOutcome
		}
		byOutcome[k.outcome] = *acc
	}
	return out
}

// TokenSupply sums available+locked across all users for one
// (symbol, outcome). Mint parity means TokenSupply(sym, Yes) ==
// TokenSupply(sym, No) at all times.
func (l *Ledger) TokenSupply(symbol string, outcome exchange.Outcome) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for k, acc := range l.tokens {
		if k.symbol == symbol && k.outcome == outcome {
			total += acc.Available + acc.Locked
		}
	}
	return total
}

// RestoreCurrency installs a currency account verbatim (restart rebuild).
func (l *Ledger) RestoreCurrency(userID string, bal exchange.Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := bal
	l.currency[userID] = &b
}

// RestoreToken installs a token account verbatim (restart rebuild).
func (l *Ledger) RestoreToken(userID, symbol string, outcome exchange.Outcome, bal exchange.Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := bal
	l.tokens[tokenKey{userID, symbol, outcome}] = &b
}
