// Package credits implements the prepaid credit ledger: per-user
// {limit, pending, used} documents, the Accountant that reserves, commits and
// releases credits against them, and the cost catalog that prices operations.
package credits

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for ledger operations.
var (
	// ErrInsufficientCredits is matched by *InsufficientCreditsError.
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	// ErrLedgerNotFound is returned when a transition requires an existing ledger document.
	ErrLedgerNotFound = errors.New("credits: ledger not found")
	// ErrConflict is returned by a store when a concurrent write won the race.
	// Stores retry on it internally; callers only see it once retries are exhausted.
	ErrConflict = errors.New("credits: write conflict")
	// ErrTransactionFailed wraps any store-level failure of a transactional update.
	ErrTransactionFailed = errors.New("credits: transaction failed")
	// ErrNoWrite may be returned by a Transition to finish without writing.
	ErrNoWrite = errors.New("credits: no write")
	// ErrCostOverflow is returned when a priced amount does not fit in uint64.
	ErrCostOverflow = errors.New("credits: cost overflow")
)

// Ledger is a user's credit document.
type Ledger struct {
	Limit   uint64 `json:"limit"`
	Pending uint64 `json:"pending"`
	Used    uint64 `json:"used"`
}

// Available returns the remaining headroom, never below zero.
func (l Ledger) Available() uint64 {
	return subClamp(subClamp(l.Limit, l.Pending), l.Used)
}

// InsufficientCreditsError reports a rejected reservation and the headroom
// that was available at the moment of the check.
type InsufficientCreditsError struct {
	Requested uint64
	Available uint64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("Insufficient Credits. Available: %d", e.Available)
}

// Is lets errors.Is match ErrInsufficientCredits.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Transition is a pure state-transition over one ledger document. found is
// false when the user has no document yet, in which case current is the zero
// Ledger. Returning ErrNoWrite ends the update without writing; any other
// error aborts it.
type Transition func(current Ledger, found bool) (Ledger, error)

// Store is the ledger persistence port.
type Store interface {
	// TransactionalUpdate atomically reads the user's ledger, applies fn and
	// writes the result. On conflicting concurrent writes the whole
	// read-modify-write is re-run; fn must therefore be free of side effects.
	// The returned Ledger is the state after the update (or the unchanged
	// state when fn returned ErrNoWrite).
	TransactionalUpdate(ctx context.Context, userID string, fn Transition) (Ledger, error)

	// Get returns the user's current ledger, or ErrLedgerNotFound.
	Get(ctx context.Context, userID string) (Ledger, error)
}

// subClamp returns a-b, or zero when b > a.
func subClamp(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
