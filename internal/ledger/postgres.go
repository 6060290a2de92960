package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const readTimeout = 5 * time.Second

// PostgresStore implements Store on a pgx connection pool. Atomic units map
// to database transactions; row locks are SELECT ... FOR UPDATE and live
// until the transaction ends.
type PostgresStore struct {
	Pool *pgxpool.Pool

	// LockTimeout bounds how long a unit waits on a contended row before the
	// operation fails with ErrConflict instead of blocking indefinitely.
	LockTimeout time.Duration
}

// NewPostgresStore creates a store with a 3s lock-wait bound.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool, LockTimeout: 3 * time.Second}
}

func (p *PostgresStore) Begin(ctx context.Context) (Unit, error) {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}

	// lock_timeout is transaction-local; an expired wait surfaces as pg code
	// 55P03 and is mapped to ErrConflict.
	timeout := p.LockTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("set lock_timeout: %w", mapStoreErr(err))
	}

	return &pgxUnit{tx: tx}, nil
}

func (p *PostgresStore) ResolveRef(ctx context.Context, ref string) (string, error) {
	queryCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var id string
	err := p.Pool.QueryRow(queryCtx, `
		SELECT id FROM accounts WHERE number = $1 OR id::text = $1
	`, ref).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("resolve account %q: %w", ref, mapStoreErr(err))
	}
	return id, nil
}

func (p *PostgresStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var a Account
	err := p.Pool.QueryRow(queryCtx, `
		SELECT id, number, owner_id, balance FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", mapStoreErr(err))
	}
	return &a, nil
}

func (p *PostgresStore) AccountByOwnerDocument(ctx context.Context, document string) (*Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var a Account
	err := p.Pool.QueryRow(queryCtx, `
		SELECT a.id, a.number, a.owner_id, a.balance
		FROM accounts a
		JOIN customers c ON c.id = a.owner_id
		WHERE c.document = $1
	`, document).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account by document: %w", mapStoreErr(err))
	}
	return &a, nil
}

func (p *PostgresStore) CreateAccount(ctx context.Context, number, ownerID string, initial int64) (*Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var a Account
	err := p.Pool.QueryRow(queryCtx, `
		INSERT INTO accounts (number, owner_id, balance)
		VALUES ($1, $2, $3)
		RETURNING id, number, owner_id, balance
	`, number, ownerID, initial).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", mapStoreErr(err))
	}
	return &a, nil
}

// pgxUnit is one database transaction. Locks acquired through it are released
// when the transaction commits or rolls back.
type pgxUnit struct {
	tx pgx.Tx
}

func (u *pgxUnit) LockForUpdate(ctx context.Context, ids []string) (map[string]Account, error) {
	// One SELECT ... FOR UPDATE per id, in the order given. The caller is
	// responsible for passing ids in canonical ascending order.
	locked := make(map[string]Account, len(ids))
	for _, id := range ids {
		var a Account
		err := u.tx.QueryRow(ctx, `
			SELECT id, number, owner_id, balance FROM accounts WHERE id = $1 FOR UPDATE
		`, id).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("lock account %s: %w", id, mapStoreErr(err))
		}
		locked[a.ID] = a
	}
	return locked, nil
}

func (u *pgxUnit) ApplyDelta(ctx context.Context, id string, delta int64) (Account, error) {
	var a Account
	err := u.tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $1
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING id, number, owner_id, balance
	`, delta, id).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("apply delta to %s: %w", id, mapStoreErr(err))
	}

	// The guarded update matched nothing: either the row is gone or the
	// result would be negative. The row is still locked by this unit, so the
	// follow-up read cannot race another writer.
	var exists bool
	if err := u.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Account{}, fmt.Errorf("apply delta to %s: %w", id, mapStoreErr(err))
	}
	if !exists {
		return Account{}, ErrAccountNotFound
	}
	return Account{}, ErrInsufficientFunds
}

func (u *pgxUnit) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

func (u *pgxUnit) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return mapStoreErr(err)
	}
	return nil
}

// mapStoreErr folds driver errors into the engine's error kinds.
func mapStoreErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01": // lock_not_available, serialization, deadlock
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case "23505": // unique_violation
			return ErrAccountExists
		case "23514": // check_violation on balance >= 0
			return ErrInsufficientFunds
		}
		return err
	}

	// Contention is reported by the server (55P03 etc., handled above). An
	// error from the network layer, or a client-side deadline against a
	// primary that stopped answering, is connectivity.
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

var _ Store = (*PostgresStore)(nil)
