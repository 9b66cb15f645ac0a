package exchange

import "errors"

// Code identifies a business-rule failure. Codes are stable: callers key
// retry and display logic off them, so they never change once shipped.
type Code string

const (
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeUnknownSymbol     Code = "UNKNOWN_SYMBOL"
	CodeOrderNotFound     Code = "ORDER_NOT_FOUND"
	CodeUserNotFound      Code = "USER_NOT_FOUND"
	CodeSymbolExists      Code = "SYMBOL_EXISTS"
	CodeUserExists        Code = "USER_EXISTS"
	CodeValidation        Code = "VALIDATION"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Error is a business outcome, not a fault: the operation was understood
// and rejected, and the ledger and books are untouched.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches two coded errors by code, so sentinel comparisons via
// errors.Is work regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInsufficientFunds = &Error{CodeInsufficientFunds, "Insufficient INR balance"}
	ErrInsufficientStock = &Error{CodeInsufficientStock, "Insufficient stock balance"}
	ErrUnknownSymbol     = &Error{CodeUnknownSymbol, "Symbol not found"}
	ErrOrderNotFound     = &Error{CodeOrderNotFound, "Order not found"}
	ErrUserNotFound      = &Error{CodeUserNotFound, "User not found"}
	ErrSymbolExists      = &Error{CodeSymbolExists, "Symbol already exists"}
	ErrUserExists        = &Error{CodeUserExists, "User already exists"}
)

// Invalid builds a field-validation rejection. These are caught at the
// transport edge before an intent reaches the core.
func Invalid(msg string) *Error {
	return &Error{CodeValidation, msg}
}

// Internal wraps a persistence or programming fault. Unlike the business
// sentinels it is retryable by the caller: the failing scope rolled back
// and no partial state is visible.
func Internal(msg string) *Error {
	return &Error{CodeInternal, msg}
}

// CodeOf extracts the business code from an error chain, or CodeInternal
// when the error carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
