package storage

import (
	"fmt"
	"strings"

	"github.com/probo-exchange/probo/pkg/exchange"
)

// Pebble key schema. Prefix-based so a range scan rebuilds one concern at
// a time on restart; order keys embed the arrival sequence zero-padded so
// lexicographic iteration restores FIFO within a price level.
const (
	prefixBalance = "bal:"   // currency account per user
	prefixToken   = "tok:"   // token account per (user, symbol, outcome)
	prefixSymbol  = "sym:"   // symbol registry record
	prefixOrder   = "ord:"   // resting order
	prefixTrade   = "trade:" // settlement record
)

// balanceKey: "bal:{user}"
func balanceKey(userID string) []byte {
	return []byte(prefixBalance + userID)
}

func userFromBalanceKey(key []byte) string {
	return strings.TrimPrefix(string(key), prefixBalance)
}

// tokenKey: "tok:{user}:{symbol}:{outcome}"
func tokenKey(userID, symbol string, outcome exchange.Outcome) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixToken, userID, symbol, outcome))
}

func parseTokenKey(key []byte) (userID, symbol string, outcome exchange.Outcome, err error) {
	rest := strings.TrimPrefix(string(key), prefixToken)
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed token key %q", key)
	}
	outcome, err = exchange.ParseOutcome(parts[2])
	if err != nil {
		return "", "", "", fmt.Errorf("malformed token key %q: %w", key, err)
	}
	return parts[0], parts[1], outcome, nil
}

// symbolKey: "sym:{name}"
func symbolKey(name string) []byte {
	return []byte(prefixSymbol + name)
}

// orderKey: "ord:{symbol}:{outcome}:{seq}:{id}"
// Seq is zero-padded to 20 digits for lexicographic ordering.
func orderKey(o *exchange.Order) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%s", prefixOrder, o.Symbol, o.Outcome, o.Seq, o.ID))
}

// tradeKey: "trade:{symbol}:{timestamp}:{id}"
func tradeKey(t *exchange.Trade) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, t.Symbol, t.ExecutedAt, t.ID))
}

func tradePrefix(symbol string) []byte {
	return []byte(prefixTrade + symbol + ":")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
