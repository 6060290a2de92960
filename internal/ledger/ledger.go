// Package ledger implements the money-movement engine: deposits, withdrawals
// and transfers applied to account balances as all-or-nothing atomic units,
// with an append-only journal of every committed movement.
package ledger

import "time"

// Account is a customer account row. Balance is held in integer minor units
// (cents); the engine never stores fractional amounts.
type Account struct {
	ID      string `json:"id"`
	Number  string `json:"number"`
	OwnerID string `json:"owner_id"`
	Balance int64  `json:"balance"`
}

// Kind tags a movement record.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
)

// Valid reports whether k names one of the three movement kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer:
		return true
	}
	return false
}

// Movement is one committed deposit, withdrawal or transfer. Records are
// created exactly once per committed unit and are immutable afterwards.
//
// AccountID is set for deposits and withdrawals; FromID/ToID for transfers.
// The *Number and OwnerName fields are joined in on reads for display and are
// not part of the persisted record.
type Movement struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	AccountID string    `json:"account_id,omitempty"`
	FromID    string    `json:"from_account_id,omitempty"`
	ToID      string    `json:"to_account_id,omitempty"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`

	AccountNumber string `json:"account_number,omitempty"`
	FromNumber    string `json:"from_number,omitempty"`
	ToNumber      string `json:"to_number,omitempty"`
	OwnerName     string `json:"owner_name,omitempty"`
}
