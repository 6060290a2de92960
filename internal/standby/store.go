// Package standby keeps a local SQLite mirror of accounts and movement
// history. When the primary store is down the back office keeps serving reads
// from the mirror; all writes are rejected upstream until the primary
// returns. The mirror is refreshed from committed primary state only, so it
// never exposes partial units.
package standby

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/systembank/internal/ledger"
)

// ErrNotFound is returned for reads that match nothing in the mirror.
var ErrNotFound = errors.New("not found in standby mirror")

// Store is the read-only secondary store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the mirror database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open standby db: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			number TEXT UNIQUE NOT NULL,
			owner_id TEXT NOT NULL,
			owner_name TEXT NOT NULL,
			owner_document TEXT NOT NULL DEFAULT '',
			balance INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS movements (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			account_id TEXT,
			from_account_id TEXT,
			to_account_id TEXT,
			amount INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			account_number TEXT,
			from_number TEXT,
			to_number TEXT,
			owner_name TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			k TEXT PRIMARY KEY,
			synced_at TIMESTAMP NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init standby schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastSync reports when the mirror was last refreshed, zero if never.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx, `SELECT synced_at FROM sync_state WHERE k = 'full'`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync state: %w", err)
	}
	return ts, nil
}

// Sync replaces the mirror's contents with the primary's committed state.
// The swap is one local transaction, so readers see either the old snapshot
// or the new one.
func (s *Store) Sync(ctx context.Context, pool *pgxpool.Pool) error {
	accounts, err := fetchAccounts(ctx, pool)
	if err != nil {
		return err
	}
	movements, err := fetchMovements(ctx, pool)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin standby sync: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"accounts", "movements"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear standby %s: %w", table, err)
		}
	}

	for _, a := range accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, number, owner_id, owner_name, owner_document, balance)
			VALUES (?, ?, ?, ?, ?, ?)
		`, a.acct.ID, a.acct.Number, a.acct.OwnerID, a.ownerName, a.ownerDocument, a.acct.Balance)
		if err != nil {
			return fmt.Errorf("mirror account %s: %w", a.acct.Number, err)
		}
	}
	for _, m := range movements {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO movements (id, kind, account_id, from_account_id, to_account_id,
				amount, created_at, account_number, from_number, to_number, owner_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, string(m.Kind), m.AccountID, m.FromID, m.ToID,
			m.Amount, m.CreatedAt, m.AccountNumber, m.FromNumber, m.ToNumber, m.OwnerName)
		if err != nil {
			return fmt.Errorf("mirror movement %s: %w", m.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (k, synced_at) VALUES ('full', ?)
		ON CONFLICT (k) DO UPDATE SET synced_at = excluded.synced_at
	`, time.Now().UTC()); err != nil {
		return fmt.Errorf("record sync state: %w", err)
	}

	return tx.Commit()
}

// AccountByRef reads a mirrored account by number or internal key.
func (s *Store) AccountByRef(ctx context.Context, ref string) (*ledger.Account, error) {
	var a ledger.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, owner_id, balance FROM accounts WHERE number = ? OR id = ?
	`, ref, ref).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("standby account read: %w", err)
	}
	return &a, nil
}

// AccountByOwnerDocument reads a mirrored account by its owner's document
// number.
func (s *Store) AccountByOwnerDocument(ctx context.Context, document string) (*ledger.Account, error) {
	var a ledger.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, number, owner_id, balance FROM accounts WHERE owner_document = ?
	`, document).Scan(&a.ID, &a.Number, &a.OwnerID, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("standby account read: %w", err)
	}
	return &a, nil
}

// ListMovements serves the mirrored journal, newest first.
func (s *Store) ListMovements(ctx context.Context, kind ledger.Kind) ([]ledger.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, COALESCE(account_id, ''), COALESCE(from_account_id, ''),
		       COALESCE(to_account_id, ''), amount, created_at,
		       COALESCE(account_number, ''), COALESCE(from_number, ''),
		       COALESCE(to_number, ''), COALESCE(owner_name, '')
		FROM movements
		WHERE kind = ?
		ORDER BY created_at DESC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("standby movement read: %w", err)
	}
	defer rows.Close()

	var out []ledger.Movement
	for rows.Next() {
		var m ledger.Movement
		var k string
		if err := rows.Scan(&m.ID, &k, &m.AccountID, &m.FromID, &m.ToID, &m.Amount,
			&m.CreatedAt, &m.AccountNumber, &m.FromNumber, &m.ToNumber, &m.OwnerName); err != nil {
			return nil, fmt.Errorf("scan standby movement: %w", err)
		}
		m.Kind = ledger.Kind(k)
		out = append(out, m)
	}
	return out, rows.Err()
}

type mirroredAccount struct {
	acct          ledger.Account
	ownerName     string
	ownerDocument string
}

func fetchAccounts(ctx context.Context, pool *pgxpool.Pool) ([]mirroredAccount, error) {
	rows, err := pool.Query(ctx, `
		SELECT a.id, a.number, a.owner_id, a.balance, c.first_name || ' ' || c.last_name, c.document
		FROM accounts a
		JOIN customers c ON c.id = a.owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts for mirror: %w", err)
	}
	defer rows.Close()

	var out []mirroredAccount
	for rows.Next() {
		var a mirroredAccount
		if err := rows.Scan(&a.acct.ID, &a.acct.Number, &a.acct.OwnerID, &a.acct.Balance, &a.ownerName, &a.ownerDocument); err != nil {
			return nil, fmt.Errorf("scan account for mirror: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func fetchMovements(ctx context.Context, pool *pgxpool.Pool) ([]ledger.Movement, error) {
	store := ledger.NewPostgresStore(pool)
	var out []ledger.Movement
	for _, kind := range []ledger.Kind{ledger.KindDeposit, ledger.KindWithdrawal, ledger.KindTransfer} {
		ms, err := store.ListMovements(ctx, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	return out, nil
}
