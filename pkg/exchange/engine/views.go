package engine

import (
	"github.com/probo-exchange/probo/pkg/exchange"
	"github.com/probo-exchange/probo/pkg/exchange/market"
	"github.com/probo-exchange/probo/pkg/exchange/orderbook"
)

// BookView is the public depth of one symbol: the open sell levels per
// outcome. Resting demand is deliberately not part of the public view.
type BookView map[exchange.Outcome][]orderbook.LevelView

// OrderBook snapshots the public depth of every symbol.
func (e *Engine) OrderBook() map[string]BookView {
	syms := e.registry.List()
	out := make(map[string]BookView, len(syms))
	for _, sym := range syms {
		out[sym.Name] = e.SymbolOrderBook(sym.Name)
	}
	return out
}

// SymbolOrderBook snapshots the public depth of one symbol. Unknown
// symbols yield an empty view.
func (e *Engine) SymbolOrderBook(symbol string) BookView {
	view := BookView{}
	if !e.registry.Exists(symbol) {
		return view
	}
	lock := e.lockSymbol(symbol)
	lock.Lock()
	defer lock.Unlock()

	b := e.ensureBooks(symbol)
	view[exchange.Yes] = b.yes.AskLevels()
	view[exchange.No] = b.no.AskLevels()
	return view
}

// CurrencyBalances snapshots every user's currency account.
func (e *Engine) CurrencyBalances() map[string]exchange.Balance {
	return e.ledger.CurrencySnapshot()
}

// CurrencyBalance reads one user's currency account.
func (e *Engine) CurrencyBalance(userID string) (exchange.Balance, error) {
	bal, ok := e.ledger.CurrencyBalance(userID)
	if !ok {
		return exchange.Balance{}, exchange.ErrUserNotFound
	}
	return bal, nil
}

// TokenBalances snapshots every user's token holdings, keyed
// user -> symbol -> outcome.
func (e *Engine) TokenBalances() map[string]map[string]map[exchange.Outcome]exchange.Balance {
	return e.ledger.TokenSnapshot()
}

// Symbols lists the registered symbols in name order.
func (e *Engine) Symbols() []market.Symbol {
	return e.registry.List()
}

// RecentTrades reads the latest settlement records of one symbol,
// newest first.
func (e *Engine) RecentTrades(symbol string, limit int) ([]*exchange.Trade, error) {
	if !e.registry.Exists(symbol) {
		return nil, exchange.ErrUnknownSymbol
	}
	return e.store.RecentTrades(symbol, limit)
}

// TokenSupply reports the outstanding quantity of one outcome's tokens,
// locked legs included. Minting keeps the YES and NO totals of a symbol
// equal at all times.
func (e *Engine) TokenSupply(symbol string, outcome exchange.Outcome) int64 {
	return e.ledger.TokenSupply(symbol, outcome)
}
