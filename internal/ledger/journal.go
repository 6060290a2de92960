package ledger

import (
	"context"
	"fmt"
)

// The journal keeps one append-only table per movement kind, matching the
// back-office schema (deposits, withdrawals, transfers). Inserts happen
// inside the caller's unit; a record is visible only if that unit commits.
// No update or delete path exists.

func (u *pgxUnit) AppendMovement(ctx context.Context, m *Movement) error {
	var err error
	switch m.Kind {
	case KindDeposit:
		_, err = u.tx.Exec(ctx, `
			INSERT INTO deposits (id, account_id, amount, created_at)
			VALUES ($1, $2, $3, $4)
		`, m.ID, m.AccountID, m.Amount, m.CreatedAt)
	case KindWithdrawal:
		_, err = u.tx.Exec(ctx, `
			INSERT INTO withdrawals (id, account_id, amount, created_at)
			VALUES ($1, $2, $3, $4)
		`, m.ID, m.AccountID, m.Amount, m.CreatedAt)
	case KindTransfer:
		_, err = u.tx.Exec(ctx, `
			INSERT INTO transfers (id, from_account_id, to_account_id, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, m.ID, m.FromID, m.ToID, m.Amount, m.CreatedAt)
	default:
		return fmt.Errorf("unknown movement kind %q", m.Kind)
	}
	if err != nil {
		return mapStoreErr(err)
	}
	return nil
}

func (p *PostgresStore) ListMovements(ctx context.Context, kind Kind) ([]Movement, error) {
	queryCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var query string
	switch kind {
	case KindDeposit:
		query = `
			SELECT d.id, d.account_id, d.amount, d.created_at,
			       a.number, c.first_name || ' ' || c.last_name
			FROM deposits d
			JOIN accounts a ON a.id = d.account_id
			JOIN customers c ON c.id = a.owner_id
			ORDER BY d.created_at DESC`
	case KindWithdrawal:
		query = `
			SELECT w.id, w.account_id, w.amount, w.created_at,
			       a.number, c.first_name || ' ' || c.last_name
			FROM withdrawals w
			JOIN accounts a ON a.id = w.account_id
			JOIN customers c ON c.id = a.owner_id
			ORDER BY w.created_at DESC`
	case KindTransfer:
		return p.listTransfers(queryCtx)
	default:
		return nil, fmt.Errorf("unknown movement kind %q", kind)
	}

	rows, err := p.Pool.Query(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s movements: %w", kind, mapStoreErr(err))
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		m := Movement{Kind: kind}
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Amount, &m.CreatedAt, &m.AccountNumber, &m.OwnerName); err != nil {
			return nil, fmt.Errorf("scan %s movement: %w", kind, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) listTransfers(ctx context.Context) ([]Movement, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT t.id, t.from_account_id, t.to_account_id, t.amount, t.created_at,
		       src.number, dst.number, c.first_name || ' ' || c.last_name
		FROM transfers t
		JOIN accounts src ON src.id = t.from_account_id
		JOIN accounts dst ON dst.id = t.to_account_id
		JOIN customers c ON c.id = src.owner_id
		ORDER BY t.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transfer movements: %w", mapStoreErr(err))
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		m := Movement{Kind: KindTransfer}
		if err := rows.Scan(&m.ID, &m.FromID, &m.ToID, &m.Amount, &m.CreatedAt, &m.FromNumber, &m.ToNumber, &m.OwnerName); err != nil {
			return nil, fmt.Errorf("scan transfer movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
