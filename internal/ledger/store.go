package ledger

import "context"

// Store is the durable boundary the engine drives. The Postgres
// implementation lives in postgres.go; tests substitute an in-memory one.
type Store interface {
	// Begin opens a new atomic unit. Every write the engine performs goes
	// through a Unit; reads outside a unit see only committed state.
	Begin(ctx context.Context) (Unit, error)

	// ResolveRef maps an external account reference, either the unique
	// account number or the internal key, to the internal key. Returns
	// ErrAccountNotFound if nothing matches.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// GetAccount reads one committed account row.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// AccountByOwnerDocument finds the account whose owner holds the given
	// national document number.
	AccountByOwnerDocument(ctx context.Context, document string) (*Account, error)

	// CreateAccount opens a new account with the given starting balance.
	CreateAccount(ctx context.Context, number, ownerID string, initial int64) (*Account, error)

	// ListMovements returns committed records of one kind, newest first,
	// joined with account numbers and owner display names.
	ListMovements(ctx context.Context, kind Kind) ([]Movement, error)
}

// Unit is one atomic unit: every mutation made through it becomes visible at
// Commit or not at all. Implementations must keep row locks held until the
// unit reaches a terminal state.
type Unit interface {
	// LockForUpdate acquires an exclusive row lock on each id, blocking
	// concurrent lockers of the same row until this unit ends. Callers must
	// pass ids pre-sorted ascending regardless of semantic role, never in
	// (source, destination) call order; that single rule is what keeps two
	// opposite transfers over the same pair of accounts from deadlocking.
	// Ids that do not resolve are absent from the returned map.
	LockForUpdate(ctx context.Context, ids []string) (map[string]Account, error)

	// ApplyDelta adds delta to a locked account's balance. The non-negativity
	// check and the mutation are a single atomic step under the row lock;
	// a result below zero fails with ErrInsufficientFunds and changes nothing.
	ApplyDelta(ctx context.Context, id string, delta int64) (Account, error)

	// AppendMovement writes one journal record inside this unit.
	AppendMovement(ctx context.Context, m *Movement) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
