package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// compile-time interface checks
var (
	_ Store   = (*PostgresStore)(nil)
	_ Catalog = (*PostgresCatalog)(nil)
)

// PostgresSchema creates the ledger and cost tables.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS credit_ledgers (
    user_id       TEXT PRIMARY KEY,
    credit_limit  BIGINT NOT NULL DEFAULT 0 CHECK (credit_limit >= 0),
    pending_usage BIGINT NOT NULL DEFAULT 0 CHECK (pending_usage >= 0),
    used_usage    BIGINT NOT NULL DEFAULT 0 CHECK (used_usage >= 0),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS credit_costs (
    kind      TEXT PRIMARY KEY,
    unit_cost BIGINT NOT NULL CHECK (unit_cost >= 0)
);
`

const (
	qSelectLedgerForUpdate = `
SELECT credit_limit, pending_usage, used_usage
FROM credit_ledgers
WHERE user_id = $1
FOR UPDATE;
`
	qUpsertLedger = `
INSERT INTO credit_ledgers (user_id, credit_limit, pending_usage, used_usage, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (user_id) DO UPDATE
SET credit_limit = EXCLUDED.credit_limit,
    pending_usage = EXCLUDED.pending_usage,
    used_usage = EXCLUDED.used_usage,
    updated_at = NOW();
`
	qSelectLedger = `
SELECT credit_limit, pending_usage, used_usage
FROM credit_ledgers
WHERE user_id = $1;
`
	qSelectCosts = `SELECT kind, unit_cost FROM credit_costs;`
)

// PostgresStore keeps ledgers in credit_ledgers. Each update runs in a
// serializable transaction holding a row lock; serialization failures and
// deadlocks re-run the whole transaction.
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPostgresStore creates a ledger store over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, maxRetries: 5}
}

// Migrate creates the ledger tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("credits/postgres: migrate: %w", err)
	}
	return nil
}

// Get returns the user's ledger.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Ledger, error) {
	var limit, pending, used int64
	err := s.pool.QueryRow(ctx, qSelectLedger, userID).Scan(&limit, &pending, &used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Ledger{}, ErrLedgerNotFound
		}
		return Ledger{}, fmt.Errorf("credits/postgres: get ledger: %w", err)
	}
	return Ledger{Limit: nonNegative(limit), Pending: nonNegative(pending), Used: nonNegative(used)}, nil
}

// TransactionalUpdate implements Store.TransactionalUpdate.
func (s *PostgresStore) TransactionalUpdate(ctx context.Context, userID string, fn Transition) (Ledger, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		l, err := s.updateOnce(ctx, userID, fn)
		if err == nil {
			return l, nil
		}
		if !isSerializationFailure(err) {
			if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrLedgerNotFound) {
				return l, err
			}
			return l, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
		}
		lastErr = err
	}
	return Ledger{}, fmt.Errorf("%w: %w: %w", ErrTransactionFailed, ErrConflict, lastErr)
}

func (s *PostgresStore) updateOnce(ctx context.Context, userID string, fn Transition) (Ledger, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Ledger{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var limit, pending, used int64
	found := true
	if err := tx.QueryRow(ctx, qSelectLedgerForUpdate, userID).Scan(&limit, &pending, &used); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Ledger{}, fmt.Errorf("select ledger: %w", err)
		}
		found = false
	}

	cur := Ledger{Limit: nonNegative(limit), Pending: nonNegative(pending), Used: nonNegative(used)}
	next, err := fn(cur, found)
	if errors.Is(err, ErrNoWrite) {
		return cur, nil
	}
	if err != nil {
		return cur, err
	}

	if _, err := tx.Exec(ctx, qUpsertLedger, userID, int64(next.Limit), int64(next.Pending), int64(next.Used)); err != nil {
		return Ledger{}, fmt.Errorf("upsert ledger: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Ledger{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// isSerializationFailure reports serialization_failure and deadlock_detected.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// PostgresCatalog reads unit costs from credit_costs.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog creates a catalog reader over a pgx pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// GetCosts returns all configured unit costs.
func (c *PostgresCatalog) GetCosts(ctx context.Context) (map[OperationKind]uint64, error) {
	rows, err := c.pool.Query(ctx, qSelectCosts)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: get costs: %w", err)
	}
	defer rows.Close()

	costs := make(map[OperationKind]uint64)
	for rows.Next() {
		var kind string
		var cost int64
		if err := rows.Scan(&kind, &cost); err != nil {
			return nil, fmt.Errorf("credits/postgres: scan cost: %w", err)
		}
		costs[OperationKind(kind)] = nonNegative(cost)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credits/postgres: read costs: %w", err)
	}
	return costs, nil
}
