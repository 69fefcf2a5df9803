package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Accountant owns the conservation invariant of the ledger. Every mutation is
// a Transition run through the Store's single atomic update path, so
// concurrent jobs of the same user interleave safely.
type Accountant struct {
	store          Store
	catalog        Catalog
	catalogTimeout time.Duration
	logger         *slog.Logger
}

// AccountantOption configures an Accountant.
type AccountantOption func(*Accountant)

// WithCatalog sets the cost catalog. Without one, compiled-in defaults are used.
func WithCatalog(c Catalog) AccountantOption {
	return func(a *Accountant) {
		a.catalog = c
	}
}

// WithCatalogTimeout bounds each catalog lookup.
func WithCatalogTimeout(d time.Duration) AccountantOption {
	return func(a *Accountant) {
		if d > 0 {
			a.catalogTimeout = d
		}
	}
}

// WithLogger sets the logger used for catalog fallbacks and no-op settlements.
func WithLogger(l *slog.Logger) AccountantOption {
	return func(a *Accountant) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAccountant creates an Accountant over the given ledger store.
func NewAccountant(store Store, opts ...AccountantOption) *Accountant {
	a := &Accountant{
		store:          store,
		catalogTimeout: 2 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reserve holds amount credits as pending. It fails with an
// *InsufficientCreditsError when pending+used+amount would exceed the limit;
// in that case the ledger is left untouched.
func (a *Accountant) Reserve(ctx context.Context, userID string, amount uint64) error {
	_, err := a.apply(ctx, userID, reserve(amount))
	return err
}

// Commit moves amount credits from pending to used.
func (a *Accountant) Commit(ctx context.Context, userID string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	_, err := a.apply(ctx, userID, commit(amount))
	return err
}

// Release returns amount pending credits to the user. A missing ledger is a no-op.
func (a *Accountant) Release(ctx context.Context, userID string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	_, err := a.apply(ctx, userID, release(amount))
	return err
}

// SetLimit sets the user's credit limit, creating the ledger if needed.
func (a *Accountant) SetLimit(ctx context.Context, userID string, limit uint64) (Ledger, error) {
	return a.apply(ctx, userID, func(cur Ledger, _ bool) (Ledger, error) {
		cur.Limit = limit
		return cur, nil
	})
}

// Balance returns the user's ledger. Users without a document have an empty one.
func (a *Accountant) Balance(ctx context.Context, userID string) (Ledger, error) {
	l, err := a.store.Get(ctx, userID)
	if errors.Is(err, ErrLedgerNotFound) {
		return Ledger{}, nil
	}
	if err != nil {
		return Ledger{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	return l, nil
}

// GetUnitCost returns the unit cost of an operation kind. Catalog failures,
// timeouts and missing entries fall back to DefaultCosts; this never fails.
func (a *Accountant) GetUnitCost(ctx context.Context, kind OperationKind) uint64 {
	fallback := DefaultCosts()[kind]
	if a.catalog == nil {
		return fallback
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.catalogTimeout)
	defer cancel()

	costs, err := a.catalog.GetCosts(lookupCtx)
	if err != nil {
		a.logger.Warn("cost catalog unavailable, using default",
			slog.String("kind", string(kind)),
			slog.Uint64("cost", fallback),
			slog.String("error", err.Error()),
		)
		return fallback
	}
	if cost, ok := costs[kind]; ok {
		return cost
	}
	return fallback
}

// apply runs one transition atomically. Business errors produced by the
// transition pass through untouched; everything else is a transaction failure.
func (a *Accountant) apply(ctx context.Context, userID string, fn Transition) (Ledger, error) {
	l, err := a.store.TransactionalUpdate(ctx, userID, fn)
	if err == nil {
		return l, nil
	}
	if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrLedgerNotFound) || errors.Is(err, ErrTransactionFailed) {
		return l, err
	}
	return l, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
}

func reserve(amount uint64) Transition {
	return func(cur Ledger, _ bool) (Ledger, error) {
		if amount > cur.Available() {
			return cur, &InsufficientCreditsError{Requested: amount, Available: cur.Available()}
		}
		cur.Pending += amount
		return cur, nil
	}
}

func commit(amount uint64) Transition {
	return func(cur Ledger, found bool) (Ledger, error) {
		if !found {
			return cur, ErrLedgerNotFound
		}
		cur.Pending = subClamp(cur.Pending, amount)
		cur.Used += amount
		return cur, nil
	}
}

func release(amount uint64) Transition {
	return func(cur Ledger, found bool) (Ledger, error) {
		if !found {
			return cur, ErrNoWrite
		}
		cur.Pending = subClamp(cur.Pending, amount)
		return cur, nil
	}
}
