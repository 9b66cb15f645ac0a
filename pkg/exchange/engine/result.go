package engine

import (
	"fmt"
	"strings"

	"github.com/probo-exchange/probo/pkg/exchange"
)

// Status is the terminal state of a submitted intent.
type Status string

const (
	StatusRejected        Status = "rejected"
	StatusResting         Status = "resting"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
)

// Result is what the caller observes: a terminal status, a human
// confirmation message, the trades produced, and (for mint) the
// remaining currency balance. Internal state is tracked purely through
// order remaining/status; the message is presentation only.
type Result struct {
	Status           Status
	Message          string
	Trades           []exchange.Trade
	RemainingBalance int64
}

func mintMessage(qty int64, userID string, remaining int64) string {
	return fmt.Sprintf("Minted %d 'yes' and 'no' tokens for user %s, remaining balance is %d", qty, userID, remaining)
}

func sellPendingMessage(qty int64, outcome exchange.Outcome, price int64) string {
	return fmt.Sprintf("Sell order placed for %d '%s' options at price %d.", qty, outcome, price)
}

const buyPendingMessage = "Buy order placed and pending"

// matchedMessage renders the confirmation for an order that traded.
//
// The contract, observed behavior of the reference system:
//   - the taker filled completely but left the consumed counter-order
//     with quantity R still resting -> "matched partially, R remaining";
//   - the taker itself has R remaining on the book -> same wording with
//     the taker's remainder;
//   - clean full fill below the limit -> "matched at best price P" with
//     P the best execution price;
//   - clean full fill at the limit -> "matched at price P".
func matchedMessage(side exchange.Side, remaining int64, bestPrice, limit int64) string {
	verb := sideTitle(side)
	switch {
	case remaining > 0:
		return fmt.Sprintf("%s order matched partially, %d remaining", verb, remaining)
	case bestPrice != limit:
		return fmt.Sprintf("%s order matched at best price %d", verb, bestPrice)
	default:
		return fmt.Sprintf("%s order matched at price %d", verb, limit)
	}
}

func cancelMessage(side exchange.Side) string {
	return fmt.Sprintf("%s order canceled", sideTitle(side))
}

func sideTitle(side exchange.Side) string {
	s := side.String()
	return strings.ToUpper(s[:1]) + s[1:]
}
