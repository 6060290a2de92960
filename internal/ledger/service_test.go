package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store), store
}

func TestDepositCreditsAccountAndJournals(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 500)

	m, err := svc.Deposit(ctx, "1001", 250)
	require.NoError(t, err)
	assert.Equal(t, KindDeposit, m.Kind)
	assert.Equal(t, "acc-a", m.AccountID)
	assert.Equal(t, int64(250), m.Amount)
	assert.Equal(t, "1001", m.AccountNumber)
	assert.NotEmpty(t, m.ID)

	assert.Equal(t, int64(750), store.balance("acc-a"))
	assert.Equal(t, 1, store.journalLen(KindDeposit))
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 500)

	for _, amount := range []int64{0, -5} {
		_, err := svc.Deposit(ctx, "1001", amount)
		require.ErrorIs(t, err, ErrInvalidAmount)
	}

	assert.Equal(t, int64(500), store.balance("acc-a"))
	assert.Equal(t, 0, store.journalLen(KindDeposit))
}

func TestDepositUnknownAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Deposit(ctx, "9999", 100)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestWithdrawInsufficientFundsLeavesBalance(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 30)

	_, err := svc.Withdraw(ctx, "1001", 50)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, int64(30), store.balance("acc-a"))
	assert.Equal(t, 0, store.journalLen(KindWithdrawal))

	// The failed unit must have released its lock.
	_, err = svc.Deposit(ctx, "1001", 1)
	require.NoError(t, err)
}

func TestWithdrawExactBalance(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 30)

	m, err := svc.Withdraw(ctx, "1001", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), m.Amount)
	assert.Equal(t, int64(0), store.balance("acc-a"))
}

func TestTransferMovesFundsAtomically(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 100)
	store.addAccount("acc-b", "1002", "own-2", 10)

	m, err := svc.Transfer(ctx, "1001", "1002", 40)
	require.NoError(t, err)
	assert.Equal(t, KindTransfer, m.Kind)
	assert.Equal(t, "acc-a", m.FromID)
	assert.Equal(t, "acc-b", m.ToID)
	assert.Equal(t, int64(40), m.Amount)

	assert.Equal(t, int64(60), store.balance("acc-a"))
	assert.Equal(t, int64(50), store.balance("acc-b"))
	assert.Equal(t, 1, store.journalLen(KindTransfer))
}

func TestTransferShortfallRollsBackBoth(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 25)
	store.addAccount("acc-b", "1002", "own-2", 10)

	_, err := svc.Transfer(ctx, "1001", "1002", 40)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, int64(25), store.balance("acc-a"))
	assert.Equal(t, int64(10), store.balance("acc-b"))
	assert.Equal(t, 0, store.journalLen(KindTransfer))
}

func TestTransferJournalFailureRollsBackBalances(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 100)
	store.addAccount("acc-b", "1002", "own-2", 10)
	store.failAppend = true

	_, err := svc.Transfer(ctx, "1001", "1002", 40)
	require.Error(t, err)

	assert.Equal(t, int64(100), store.balance("acc-a"))
	assert.Equal(t, int64(10), store.balance("acc-b"))
	assert.Equal(t, 0, store.journalLen(KindTransfer))

	// Locks released by the rollback; the pair is usable again.
	store.failAppend = false
	_, err = svc.Transfer(ctx, "1001", "1002", 40)
	require.NoError(t, err)
}

func TestSelfTransferRejected(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 100)

	_, err := svc.Transfer(ctx, "1001", "1001", 10)
	require.ErrorIs(t, err, ErrSameAccount)

	assert.Equal(t, int64(100), store.balance("acc-a"))
	assert.Equal(t, 0, store.journalLen(KindTransfer))
}

func TestTransferUnknownDestination(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 100)

	_, err := svc.Transfer(ctx, "1001", "9999", 10)
	require.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, int64(100), store.balance("acc-a"))
}

// Submitting the identical deposit twice applies twice: there is no
// idempotency key, by design.
func TestDuplicateDepositAppliesTwice(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 0)

	_, err := svc.Deposit(ctx, "1001", 100)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, "1001", 100)
	require.NoError(t, err)

	assert.Equal(t, int64(200), store.balance("acc-a"))
	assert.Equal(t, 2, store.journalLen(KindDeposit))
}

// Opposite concurrent transfers over the same pair must neither deadlock nor
// lose money. Both accounts are funded so no iteration hits a shortfall.
func TestConcurrentOppositeTransfers(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 100_000)
	store.addAccount("acc-b", "1002", "own-2", 100_000)

	const rounds = 100
	var wg sync.WaitGroup
	wg.Add(2 * rounds)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, "1001", "1002", 3)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, "1002", "1001", 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100_000-rounds*3+rounds*5), store.balance("acc-a"))
	assert.Equal(t, int64(100_000-rounds*5+rounds*3), store.balance("acc-b"))
	assert.Equal(t, 2*rounds, store.journalLen(KindTransfer))
}

// Transfers conserve the total across all accounts no matter how they
// interleave.
func TestConcurrentTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	numbers := []string{"1001", "1002", "1003", "1004"}
	for i, n := range numbers {
		store.addAccount("acc-"+n, n, "own-1", int64(1000*(i+1)))
	}
	before := store.totalBalance()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		from := numbers[i%len(numbers)]
		to := numbers[(i+1+i%3)%len(numbers)]
		if from == to {
			continue
		}
		wg.Add(1)
		go func(from, to string, amount int64) {
			defer wg.Done()
			// Shortfalls are fine here; they must roll back cleanly.
			_, _ = svc.Transfer(ctx, from, to, amount)
		}(from, to, int64(1+i%50))
	}
	wg.Wait()

	assert.Equal(t, before, store.totalBalance())
	for _, n := range numbers {
		assert.GreaterOrEqual(t, store.balance("acc-"+n), int64(0))
	}
}

func TestListMovementsRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ListMovements(context.Background(), Kind("refund"))
	require.Error(t, err)
}

func TestListMovementsNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	store.addAccount("acc-a", "1001", "own-1", 0)

	for i := 0; i < 3; i++ {
		_, err := svc.Deposit(ctx, "1001", int64(10*(i+1)))
		require.NoError(t, err)
	}

	got, err := svc.ListMovements(ctx, KindDeposit)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
	}
}

func TestOpenAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	a, err := svc.OpenAccount(ctx, "2001", "own-9", 150)
	require.NoError(t, err)
	assert.Equal(t, "2001", a.Number)
	assert.Equal(t, int64(150), a.Balance)

	_, err = svc.OpenAccount(ctx, "2001", "own-9", 0)
	require.ErrorIs(t, err, ErrAccountExists)

	_, err = svc.OpenAccount(ctx, "2002", "own-9", -1)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.OpenAccount(ctx, "", "own-9", 0)
	require.Error(t, err)
}
