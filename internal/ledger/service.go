package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Service exposes the three money-movement operations as all-or-nothing
// units. It holds no state of its own between calls; all shared mutable state
// is in Store-managed account rows, so any number of operations may run
// concurrently.
//
// The service never retries a failed movement. Conflicts and connectivity
// failures surface as ErrConflict / ErrUnavailable and resubmission is the
// caller's decision — there is no idempotency key, so a resubmitted request
// applies again.
type Service struct {
	store Store
}

// NewService creates the ledger service on top of a Store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Deposit credits amount (minor units) to the referenced account and records
// one Deposit movement, all in a single atomic unit.
func (s *Service) Deposit(ctx context.Context, ref string, amount int64) (*Movement, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	id, err := s.store.ResolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, func(u Unit) (*Movement, error) {
		locked, err := u.LockForUpdate(ctx, []string{id})
		if err != nil {
			return nil, err
		}
		if _, ok := locked[id]; !ok {
			return nil, ErrAccountNotFound
		}

		acct, err := u.ApplyDelta(ctx, id, amount)
		if err != nil {
			return nil, err
		}

		m := &Movement{
			ID:            uuid.NewString(),
			Kind:          KindDeposit,
			AccountID:     id,
			AccountNumber: acct.Number,
			Amount:        amount,
			CreatedAt:     time.Now().UTC(),
		}
		if err := u.AppendMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("append deposit record: %w", err)
		}
		return m, nil
	})
}

// Withdraw debits amount from the referenced account. The balance check and
// the subtraction are one atomic step under the row lock, so a concurrent
// withdrawal can never race the shortfall check.
func (s *Service) Withdraw(ctx context.Context, ref string, amount int64) (*Movement, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	id, err := s.store.ResolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, func(u Unit) (*Movement, error) {
		locked, err := u.LockForUpdate(ctx, []string{id})
		if err != nil {
			return nil, err
		}
		if _, ok := locked[id]; !ok {
			return nil, ErrAccountNotFound
		}

		acct, err := u.ApplyDelta(ctx, id, -amount)
		if err != nil {
			return nil, err
		}

		m := &Movement{
			ID:            uuid.NewString(),
			Kind:          KindWithdrawal,
			AccountID:     id,
			AccountNumber: acct.Number,
			Amount:        amount,
			CreatedAt:     time.Now().UTC(),
		}
		if err := u.AppendMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("append withdrawal record: %w", err)
		}
		return m, nil
	})
}

// Transfer moves amount between two accounts and records a single Transfer
// movement. The debit and credit commit together or not at all; a transfer is
// never observable half-applied.
func (s *Service) Transfer(ctx context.Context, fromRef, toRef string, amount int64) (*Movement, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	fromID, err := s.store.ResolveRef(ctx, fromRef)
	if err != nil {
		return nil, err
	}
	toID, err := s.store.ResolveRef(ctx, toRef)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, ErrSameAccount
	}

	// Lock in ascending key order, never (from, to) call order. Two
	// concurrent transfers A->B and B->A both request {A,B} the same way,
	// which rules out circular waits.
	lockIDs := []string{fromID, toID}
	sort.Strings(lockIDs)

	return s.run(ctx, func(u Unit) (*Movement, error) {
		locked, err := u.LockForUpdate(ctx, lockIDs)
		if err != nil {
			return nil, err
		}
		from, ok := locked[fromID]
		if !ok {
			return nil, ErrAccountNotFound
		}
		to, ok := locked[toID]
		if !ok {
			return nil, ErrAccountNotFound
		}

		if _, err := u.ApplyDelta(ctx, fromID, -amount); err != nil {
			return nil, err
		}
		if _, err := u.ApplyDelta(ctx, toID, amount); err != nil {
			return nil, err
		}

		m := &Movement{
			ID:         uuid.NewString(),
			Kind:       KindTransfer,
			FromID:     fromID,
			ToID:       toID,
			FromNumber: from.Number,
			ToNumber:   to.Number,
			Amount:     amount,
			CreatedAt:  time.Now().UTC(),
		}
		if err := u.AppendMovement(ctx, m); err != nil {
			return nil, fmt.Errorf("append transfer record: %w", err)
		}
		return m, nil
	})
}

// ListMovements returns the committed history of one kind, newest first.
func (s *Service) ListMovements(ctx context.Context, kind Kind) ([]Movement, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown movement kind %q", kind)
	}
	return s.store.ListMovements(ctx, kind)
}

// OpenAccount creates an account for a customer with a non-negative starting
// balance. Account opening is not a movement and writes no journal record.
func (s *Service) OpenAccount(ctx context.Context, number, ownerID string, initial int64) (*Account, error) {
	if number == "" || ownerID == "" {
		return nil, fmt.Errorf("account number and owner are required")
	}
	if initial < 0 {
		return nil, ErrInvalidAmount
	}
	return s.store.CreateAccount(ctx, number, ownerID, initial)
}

// AccountByRef reads one committed account by number or internal key.
func (s *Service) AccountByRef(ctx context.Context, ref string) (*Account, error) {
	id, err := s.store.ResolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.store.GetAccount(ctx, id)
}

// AccountByOwnerDocument finds a customer's account by document number.
func (s *Service) AccountByOwnerDocument(ctx context.Context, document string) (*Account, error) {
	if document == "" {
		return nil, fmt.Errorf("document is required")
	}
	return s.store.AccountByOwnerDocument(ctx, document)
}

// run drives one unit to a terminal state. A unit that began always ends in
// Commit or Rollback even when the caller's context has been abandoned;
// rollback runs on a detached context so a held row lock is never leaked.
func (s *Service) run(ctx context.Context, fn func(Unit) (*Movement, error)) (*Movement, error) {
	u, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	m, err := fn(u)
	if err != nil {
		_ = u.Rollback(context.WithoutCancel(ctx))
		return nil, err
	}

	if err := u.Commit(ctx); err != nil {
		_ = u.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}
