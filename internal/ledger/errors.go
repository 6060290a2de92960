package ledger

import "errors"

// Error kinds surfaced by the engine. Callers can test with errors.Is to
// decide between "try again" (ErrConflict, ErrUnavailable) and "request is
// invalid as given" (everything else).
var (
	// ErrInvalidAmount means the requested amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameAccount means a transfer named the same account on both sides.
	ErrSameAccount = errors.New("source and destination accounts must be different")

	// ErrAccountNotFound means a reference did not resolve to an account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists means the account number is already taken.
	ErrAccountExists = errors.New("account number already exists")

	// ErrInsufficientFunds means a debit would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict means a row lock could not be acquired in time. The engine
	// never retries on its own; resubmitting is the caller's decision.
	ErrConflict = errors.New("operation conflicts with a concurrent one")

	// ErrUnavailable means durable storage is unreachable. The current unit
	// is a hard failure; reconnection is the supervisor's job.
	ErrUnavailable = errors.New("storage unavailable")
)
