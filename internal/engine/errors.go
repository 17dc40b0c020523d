package engine

import (
	"errors"
	"fmt"

	"wallet-txengine-go/internal/money"
)

var (
	// ErrUnsupportedCombination means no engine exists for the requested
	// (source, target, action). It is a programming or configuration error.
	ErrUnsupportedCombination = errors.New("unsupported source/target/action combination")
	// ErrInvalidInputs is returned by AssertInputsValid when an engine was
	// handed a source or target it cannot serve.
	ErrInvalidInputs     = errors.New("engine inputs invalid")
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	ErrMissingDependency = errors.New("engine dependency not configured")
)

// ValidationState is the reason an amount or target failed validation
type ValidationState string

const (
	StateInsufficientFunds        ValidationState = "INSUFFICIENT_FUNDS"
	StateInsufficientFundsForFees ValidationState = "INSUFFICIENT_FUNDS_FOR_FEES"
	StateBelowMinimumLimit        ValidationState = "BELOW_MINIMUM_LIMIT"
	StateOverMaximumLimit         ValidationState = "OVER_MAXIMUM_LIMIT"
	StateOverDailyLimit           ValidationState = "OVER_DAILY_LIMIT"
	StateOverAnnualLimit          ValidationState = "OVER_ANNUAL_LIMIT"
	StateSettlementNotReady       ValidationState = "SETTLEMENT_NOT_READY"
	StateInvalidAddress           ValidationState = "INVALID_ADDRESS"
	StateMemoRequired             ValidationState = "MEMO_REQUIRED"
	StateInvoiceExpired           ValidationState = "INVOICE_EXPIRED"
	StateQuoteExpired             ValidationState = "QUOTE_EXPIRED"
	StateInvalidAmount            ValidationState = "INVALID_AMOUNT"
)

// ValidationError is a recoverable failure the user can fix by amending the
// transaction. Available and Requested are set for balance and limit states.
type ValidationError struct {
	State          ValidationState
	Available      *money.Money
	Requested      *money.Money
	SourceCurrency money.Currency
	TargetCurrency money.Currency
	Reason         string
}

func (e *ValidationError) Error() string {
	msg := "validation failed: " + string(e.State)
	if e.Requested != nil && e.Available != nil {
		msg = fmt.Sprintf("%s (requested %s, available %s)", msg, e.Requested, e.Available)
	} else if e.Requested != nil {
		msg = fmt.Sprintf("%s (requested %s)", msg, e.Requested)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches any ValidationError with the same state.
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if errors.As(target, &t) {
		return e.State == t.State
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrInsufficientFunds        = &ValidationError{State: StateInsufficientFunds}
	ErrInsufficientFundsForFees = &ValidationError{State: StateInsufficientFundsForFees}
	ErrBelowMinimumLimit        = &ValidationError{State: StateBelowMinimumLimit}
	ErrOverMaximumLimit         = &ValidationError{State: StateOverMaximumLimit}
	ErrOverDailyLimit           = &ValidationError{State: StateOverDailyLimit}
	ErrOverAnnualLimit          = &ValidationError{State: StateOverAnnualLimit}
	ErrSettlementNotReady       = &ValidationError{State: StateSettlementNotReady}
	ErrInvalidAddress           = &ValidationError{State: StateInvalidAddress}
	ErrMemoRequired             = &ValidationError{State: StateMemoRequired}
	ErrInvoiceExpired           = &ValidationError{State: StateInvoiceExpired}
	ErrQuoteExpired             = &ValidationError{State: StateQuoteExpired}
	ErrInvalidAmount            = &ValidationError{State: StateInvalidAmount}
)

func newValidationError(state ValidationState, reason string) *ValidationError {
	return &ValidationError{State: state, Reason: reason}
}

// ExecutionError is a terminal failure of Execute. Ambiguous is set when the
// backend call may have gone through but its outcome could not be mapped;
// such attempts are journaled for reconciliation and never retried.
type ExecutionError struct {
	Op        string
	Reference string
	Ambiguous bool
	Err       error
}

func (e *ExecutionError) Error() string {
	kind := "failed"
	if e.Ambiguous {
		kind = "outcome unknown"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Op, kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func executionFailed(op string, err error) *ExecutionError {
	return &ExecutionError{Op: op, Err: err}
}

func executionAmbiguous(op, reference string, err error) *ExecutionError {
	return &ExecutionError{Op: op, Reference: reference, Ambiguous: true, Err: err}
}

// IsAmbiguous reports whether err carries an ambiguous execution outcome.
func IsAmbiguous(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e) && e.Ambiguous
}
