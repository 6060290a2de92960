// Package customers holds customer profile CRUD. It sits outside the ledger
// engine; nothing here touches balances.
package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("customer not found")
	ErrDocumentExists = errors.New("document number already registered")
)

// Customer is a bank customer profile. Document is the national document
// number the back office uses for lookups.
type Customer struct {
	ID        string `json:"id"`
	Document  string `json:"document"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

const queryTimeout = 5 * time.Second

// Store provides customer rows over a pgx pool.
type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) List(ctx context.Context) ([]Customer, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(queryCtx, `
		SELECT id, document, first_name, last_name, COALESCE(email, ''), COALESCE(address, '')
		FROM customers
		ORDER BY last_name, first_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Document, &c.FirstName, &c.LastName, &c.Email, &c.Address); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetByDocument(ctx context.Context, document string) (*Customer, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c Customer
	err := s.Pool.QueryRow(queryCtx, `
		SELECT id, document, first_name, last_name, COALESCE(email, ''), COALESCE(address, '')
		FROM customers
		WHERE document = $1
	`, document).Scan(&c.ID, &c.Document, &c.FirstName, &c.LastName, &c.Email, &c.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer by document: %w", err)
	}
	return &c, nil
}

func (s *Store) Create(ctx context.Context, c Customer) (*Customer, error) {
	if err := validate(c); err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := s.Pool.QueryRow(queryCtx, `
		INSERT INTO customers (document, first_name, last_name, email, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, c.Document, c.FirstName, c.LastName, c.Email, c.Address).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDocumentExists
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &c, nil
}

func (s *Store) Update(ctx context.Context, id string, c Customer) error {
	if err := validate(c); err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.Pool.Exec(queryCtx, `
		UPDATE customers
		SET document = $1, first_name = $2, last_name = $3, email = $4, address = $5
		WHERE id = $6
	`, c.Document, c.FirstName, c.LastName, c.Email, c.Address, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDocumentExists
		}
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.Pool.Exec(queryCtx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func validate(c Customer) error {
	if c.Document == "" {
		return fmt.Errorf("document is required")
	}
	if c.FirstName == "" || c.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	return nil
}
