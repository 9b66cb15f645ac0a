// Package exchange holds the shared primitives of the prediction-market
// core: outcomes, order/trade records, and the coded business errors that
// every layer above reports to callers.
package exchange

import "fmt"

// Outcome is one side of a binary market. Tokens are minted in equal
// YES/NO pairs against a currency stake.
type Outcome string

const (
	Yes Outcome = "yes"
	No  Outcome = "no"
)

// ParseOutcome validates a wire-level outcome string.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case Yes:
		return Yes, nil
	case No:
		return No, nil
	}
	return "", fmt.Errorf("invalid outcome %q (want yes|no)", s)
}

// Outcomes lists both outcomes in a stable order.
func Outcomes() [2]Outcome { return [2]Outcome{Yes, No} }

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderPartiallyFilled
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is a limit order. While Remaining > 0 and the status is open or
// partially filled it rests on a book; afterwards it survives only as a
// terminal record.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Symbol    string      `json:"symbol"`
	Outcome   Outcome     `json:"outcome"`
	Side      Side        `json:"side"`
	Price     int64       `json:"price"`    // minor currency units, > 0
	Quantity  int64       `json:"quantity"` // original size, > 0
	Remaining int64       `json:"remaining"`
	Status    OrderStatus `json:"status"`
	CreatedAt int64       `json:"createdAt"` // unix milliseconds
	Seq       uint64      `json:"seq"`       // arrival sequence, FIFO tiebreak within a price level
}

// Trade is an immutable settlement record, created exactly once per
// matched quantity and never mutated.
type Trade struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Outcome    Outcome `json:"outcome"`
	BuyerID    string  `json:"buyerId"`
	SellerID   string  `json:"sellerId"`
	Price      int64   `json:"price"`
	Quantity   int64   `json:"quantity"`
	ExecutedAt int64   `json:"executedAt"` // unix milliseconds
}

// Balance is an available/locked split of one asset for one user.
// Both legs are non-negative at all times.
type Balance struct {
	Available int64 `json:"available"`
	Locked    int64 `json:"locked"`
}
