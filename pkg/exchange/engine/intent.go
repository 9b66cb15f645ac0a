package engine

import (
	"math"

	"github.com/probo-exchange/probo/pkg/exchange"
)

// Intent is the closed set of mutating requests the engine accepts:
// Mint, PlaceSell, PlaceBuy, Cancel. Fields are statically validated
// before any lock is taken or any balance touched.
type Intent interface {
	Validate() error
	intent()
}

type MintIntent struct {
	UserID   string
	Symbol   string
	Quantity int64
	Price    int64
}

type SellIntent struct {
	UserID   string
	Symbol   string
	Outcome  exchange.Outcome
	Quantity int64
	Price    int64
}

type BuyIntent struct {
	UserID   string
	Symbol   string
	Outcome  exchange.Outcome
	Quantity int64
	Price    int64
}

type CancelIntent struct {
	UserID   string
	Symbol   string
	Outcome  exchange.Outcome
	Quantity int64
	Price    int64
}

func (MintIntent) intent()   {}
func (SellIntent) intent()   {}
func (BuyIntent) intent()    {}
func (CancelIntent) intent() {}

func (in MintIntent) Validate() error {
	return validateCommon(in.UserID, in.Symbol, in.Quantity, in.Price)
}

func (in SellIntent) Validate() error {
	if err := validateCommon(in.UserID, in.Symbol, in.Quantity, in.Price); err != nil {
		return err
	}
	return validateOutcome(in.Outcome)
}

func (in BuyIntent) Validate() error {
	if err := validateCommon(in.UserID, in.Symbol, in.Quantity, in.Price); err != nil {
		return err
	}
	return validateOutcome(in.Outcome)
}

func (in CancelIntent) Validate() error {
	if err := validateCommon(in.UserID, in.Symbol, in.Quantity, in.Price); err != nil {
		return err
	}
	return validateOutcome(in.Outcome)
}

func validateCommon(userID, symbol string, qty, price int64) error {
	if userID == "" {
		return exchange.Invalid("userId is required")
	}
	if symbol == "" {
		return exchange.Invalid("stockSymbol is required")
	}
	if qty <= 0 {
		return exchange.Invalid("quantity must be positive")
	}
	if price <= 0 {
		return exchange.Invalid("price must be positive")
	}
	// The notional qty*price must stay representable or the funds checks
	// downstream wrap around.
	if qty > math.MaxInt64/price {
		return exchange.Invalid("quantity*price is too large")
	}
	return nil
}

func validateOutcome(o exchange.Outcome) error {
	if _, err := exchange.ParseOutcome(string(o)); err != nil {
		return exchange.Invalid(err.Error())
	}
	return nil
}
