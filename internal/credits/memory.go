package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

type versionedLedger struct {
	ledger  Ledger
	version uint64
}

// MemoryStore is an in-memory Store with optimistic concurrency: a transition
// runs against a snapshot outside the lock and is committed only if the
// document version is unchanged, otherwise it is re-run.
// Suitable for development and testing.
type MemoryStore struct {
	mu         sync.Mutex
	ledgers    map[string]versionedLedger
	maxRetries int

	// beforeCommit is a test hook run between a transition and its commit.
	beforeCommit func(userID string)
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ledgers:    make(map[string]versionedLedger),
		maxRetries: 64,
	}
}

// Put seeds a user's ledger, replacing any existing document.
func (s *MemoryStore) Put(userID string, l Ledger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.ledgers[userID]
	s.ledgers[userID] = versionedLedger{ledger: l, version: cur.version + 1}
}

// Get returns the user's ledger.
func (s *MemoryStore) Get(_ context.Context, userID string) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.ledgers[userID]
	if !ok {
		return Ledger{}, ErrLedgerNotFound
	}
	return v.ledger, nil
}

// TransactionalUpdate implements Store.TransactionalUpdate.
func (s *MemoryStore) TransactionalUpdate(ctx context.Context, userID string, fn Transition) (Ledger, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Ledger{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
		}

		s.mu.Lock()
		snap, found := s.ledgers[userID]
		s.mu.Unlock()

		next, err := fn(snap.ledger, found)
		if errors.Is(err, ErrNoWrite) {
			return snap.ledger, nil
		}
		if err != nil {
			return snap.ledger, err
		}

		if s.beforeCommit != nil {
			s.beforeCommit(userID)
		}

		s.mu.Lock()
		cur, stillFound := s.ledgers[userID]
		if stillFound != found || cur.version != snap.version {
			s.mu.Unlock()
			continue
		}
		s.ledgers[userID] = versionedLedger{ledger: next, version: snap.version + 1}
		s.mu.Unlock()
		return next, nil
	}
	return Ledger{}, fmt.Errorf("%w: %w after %d attempts", ErrTransactionFailed, ErrConflict, s.maxRetries+1)
}
