// Package ledger implements the paper-trading core: quoting, position and
// cash accounting, atomic trade execution, and P&L valuation.
//
// All mutating operations on a given account form a single linear history.
// The executor holds a per-account lock across validate and mutate, so a
// rejected order can never leave partial state behind.
package ledger

import "errors"

// Error kinds returned by the ledger. Callers classify with errors.Is.
var (
	// ErrInvalidInput marks a malformed order: non-positive quantity or
	// price, negative commission or spread. Rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds rejects a buy whose total cost exceeds the
	// account's cash balance. Cash is left untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition rejects a sell larger than the held quantity.
	// The position is left untouched.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrUnknownAccount is returned when an account has not been opened.
	ErrUnknownAccount = errors.New("unknown account")
)

// ErrorKind returns the wire label for a ledger error, or "internal" for
// anything outside the taxonomy.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrInsufficientPosition):
		return "InsufficientPosition"
	case errors.Is(err, ErrUnknownAccount):
		return "UnknownAccount"
	default:
		return "internal"
	}
}
