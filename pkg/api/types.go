package api

import (
	"strconv"

	"github.com/probo-exchange/probo/pkg/exchange"
	"github.com/probo-exchange/probo/pkg/exchange/engine"
)

// OnrampRequest funds a user's currency account.
type OnrampRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

// MintRequest creates paired YES/NO tokens against a currency stake.
type MintRequest struct {
	UserID      string `json:"userId"`
	StockSymbol string `json:"stockSymbol"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
}

// OrderRequest is the shared body of buy, sell, and cancel.
type OrderRequest struct {
	UserID      string `json:"userId"`
	StockSymbol string `json:"stockSymbol"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	StockType   string `json:"stockType"`
}

// MessageResponse is the standard affirmative reply.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse carries a coded business failure.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// InrBalance is the wire form of a currency account.
type InrBalance struct {
	Balance int64 `json:"balance"`
	Locked  int64 `json:"locked"`
}

// StockBalance is the wire form of one token holding.
type StockBalance struct {
	Quantity int64 `json:"quantity"`
	Locked   int64 `json:"locked"`
}

// BookLevel is one public sell level: the aggregate size and the
// per-user breakdown.
type BookLevel struct {
	Total  int64            `json:"total"`
	Orders map[string]int64 `json:"orders"`
}

// OutcomeDepth maps decimal price strings to levels.
type OutcomeDepth map[string]BookLevel

// SymbolDepth maps outcome names to their depth.
type SymbolDepth map[string]OutcomeDepth

// TradeInfo is the wire form of a settlement record.
type TradeInfo struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Outcome    string `json:"outcome"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
	ExecutedAt int64  `json:"executedAt"`
}

// BookUpdate is the websocket depth broadcast.
type BookUpdate struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Book      SymbolDepth `json:"book"`
	Timestamp int64       `json:"timestamp"`
}

// TradeUpdate is the websocket trade broadcast.
type TradeUpdate struct {
	Type  string    `json:"type"`
	Trade TradeInfo `json:"trade"`
}

// WSSubscribeRequest is the client-side channel control message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

func depthFromView(view engine.BookView) SymbolDepth {
	depth := SymbolDepth{}
	for outcome, levels := range view {
		od := OutcomeDepth{}
		for _, lvl := range levels {
			od[strconv.FormatInt(lvl.Price, 10)] = BookLevel{
				Total:  lvl.Total,
				Orders: lvl.ByUser,
			}
		}
		depth[string(outcome)] = od
	}
	return depth
}

func tradeInfo(t exchange.Trade) TradeInfo {
	return TradeInfo{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Outcome:    string(t.Outcome),
		Price:      t.Price,
		Quantity:   t.Quantity,
		ExecutedAt: t.ExecutedAt,
	}
}
