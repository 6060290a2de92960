package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// memStore is an in-memory Store with real per-row blocking locks, so the
// concurrency tests exercise the same lock-ordering contract the Postgres
// store relies on. Units buffer their writes and publish them at Commit.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*memAccount
	byNumber map[string]string
	owners   map[string]string // owner id -> display name
	docs     map[string]string // document -> owner id
	journal  map[Kind][]Movement
	nextID   int

	failAppend bool
}

type memAccount struct {
	rowLock sync.Mutex
	acct    Account
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*memAccount),
		byNumber: make(map[string]string),
		owners:   make(map[string]string),
		docs:     make(map[string]string),
		journal:  make(map[Kind][]Movement),
	}
}

func (s *memStore) addAccount(id, number, ownerID string, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = &memAccount{acct: Account{ID: id, Number: number, OwnerID: ownerID, Balance: balance}}
	s.byNumber[number] = id
}

func (s *memStore) balance(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].acct.Balance
}

func (s *memStore) journalLen(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.journal[kind])
}

func (s *memStore) totalBalance() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, a := range s.accounts {
		sum += a.acct.Balance
	}
	return sum
}

func (s *memStore) Begin(ctx context.Context) (Unit, error) {
	return &memUnit{store: s, pending: make(map[string]int64)}, nil
}

func (s *memStore) ResolveRef(ctx context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byNumber[ref]; ok {
		return id, nil
	}
	if _, ok := s.accounts[ref]; ok {
		return ref, nil
	}
	return "", ErrAccountNotFound
}

func (s *memStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := a.acct
	return &cp, nil
}

func (s *memStore) AccountByOwnerDocument(ctx context.Context, document string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ownerID, ok := s.docs[document]
	if !ok {
		return nil, ErrAccountNotFound
	}
	for _, a := range s.accounts {
		if a.acct.OwnerID == ownerID {
			cp := a.acct
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *memStore) CreateAccount(ctx context.Context, number, ownerID string, initial int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNumber[number]; ok {
		return nil, ErrAccountExists
	}
	s.nextID++
	id := fmt.Sprintf("mem-%d", s.nextID)
	s.accounts[id] = &memAccount{acct: Account{ID: id, Number: number, OwnerID: ownerID, Balance: initial}}
	s.byNumber[number] = id
	cp := s.accounts[id].acct
	return &cp, nil
}

func (s *memStore) ListMovements(ctx context.Context, kind Kind) ([]Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Movement, len(s.journal[kind]))
	copy(out, s.journal[kind])
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memUnit struct {
	store   *memStore
	locked  []*memAccount
	pending map[string]int64
	appends []Movement
	done    bool
}

func (u *memUnit) LockForUpdate(ctx context.Context, ids []string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))
	for _, id := range ids {
		u.store.mu.Lock()
		a, ok := u.store.accounts[id]
		u.store.mu.Unlock()
		if !ok {
			continue
		}

		// Blocks until any other unit holding this row commits or rolls
		// back, like a database row lock. Acquisition order is exactly the
		// order the caller passed.
		a.rowLock.Lock()
		u.locked = append(u.locked, a)

		u.store.mu.Lock()
		u.pending[id] = a.acct.Balance
		out[id] = a.acct
		u.store.mu.Unlock()
	}
	return out, nil
}

func (u *memUnit) ApplyDelta(ctx context.Context, id string, delta int64) (Account, error) {
	bal, ok := u.pending[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if bal+delta < 0 {
		return Account{}, ErrInsufficientFunds
	}
	u.pending[id] = bal + delta

	u.store.mu.Lock()
	cp := u.store.accounts[id].acct
	u.store.mu.Unlock()
	cp.Balance = bal + delta
	return cp, nil
}

func (u *memUnit) AppendMovement(ctx context.Context, m *Movement) error {
	if u.store.failAppend {
		return errors.New("journal write failed")
	}
	u.appends = append(u.appends, *m)
	return nil
}

func (u *memUnit) Commit(ctx context.Context) error {
	if u.done {
		return errors.New("unit already finished")
	}
	u.store.mu.Lock()
	for id, bal := range u.pending {
		u.store.accounts[id].acct.Balance = bal
	}
	for _, m := range u.appends {
		u.store.journal[m.Kind] = append(u.store.journal[m.Kind], m)
	}
	u.store.mu.Unlock()
	u.finish()
	return nil
}

func (u *memUnit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *memUnit) finish() {
	for _, a := range u.locked {
		a.rowLock.Unlock()
	}
	u.locked = nil
	u.done = true
}

var _ Store = (*memStore)(nil)
