package credits

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Get_NotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrLedgerNotFound)
}

func TestMemoryStore_TransactionalUpdate_CreatesDocument(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	l, err := store.TransactionalUpdate(ctx, "user-1", func(cur Ledger, found bool) (Ledger, error) {
		assert.False(t, found)
		assert.Equal(t, Ledger{}, cur)
		cur.Limit = 10
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Ledger{Limit: 10}, l)

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Ledger{Limit: 10}, got)
}

func TestMemoryStore_TransactionalUpdate_NoWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put("user-1", Ledger{Limit: 5})

	l, err := store.TransactionalUpdate(ctx, "user-1", func(cur Ledger, _ bool) (Ledger, error) {
		return Ledger{Limit: 999}, ErrNoWrite
	})
	require.NoError(t, err)
	assert.Equal(t, Ledger{Limit: 5}, l)

	got, _ := store.Get(ctx, "user-1")
	assert.Equal(t, Ledger{Limit: 5}, got)
}

func TestMemoryStore_TransactionalUpdate_TransitionError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put("user-1", Ledger{Limit: 5})
	boom := errors.New("boom")

	_, err := store.TransactionalUpdate(ctx, "user-1", func(cur Ledger, _ bool) (Ledger, error) {
		return cur, boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := store.Get(ctx, "user-1")
	assert.Equal(t, Ledger{Limit: 5}, got)
}

func TestMemoryStore_TransactionalUpdate_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put("user-1", Ledger{Limit: 100})

	// The first attempt loses the race to a concurrent reservation of 10.
	interfered := false
	store.beforeCommit = func(userID string) {
		if interfered {
			return
		}
		interfered = true
		store.mu.Lock()
		cur := store.ledgers[userID]
		cur.ledger.Pending += 10
		cur.version++
		store.ledgers[userID] = cur
		store.mu.Unlock()
	}

	calls := 0
	l, err := store.TransactionalUpdate(ctx, "user-1", func(cur Ledger, _ bool) (Ledger, error) {
		calls++
		cur.Pending += 5
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, Ledger{Limit: 100, Pending: 15}, l)
}

func TestMemoryStore_TransactionalUpdate_ConflictExhausted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.maxRetries = 2
	store.Put("user-1", Ledger{Limit: 100})
	store.beforeCommit = func(userID string) {
		store.Put(userID, Ledger{Limit: 100})
	}

	_, err := store.TransactionalUpdate(ctx, "user-1", func(cur Ledger, _ bool) (Ledger, error) {
		cur.Pending++
		return cur, nil
	})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_TransactionalUpdate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryStore()

	_, err := store.TransactionalUpdate(ctx, "user-1", func(cur Ledger, _ bool) (Ledger, error) {
		return cur, nil
	})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_LedgerAvailable(t *testing.T) {
	assert.Equal(t, uint64(7), Ledger{Limit: 10, Pending: 1, Used: 2}.Available())
	assert.Equal(t, uint64(0), Ledger{Limit: 3, Pending: 2, Used: 2}.Available())
}
