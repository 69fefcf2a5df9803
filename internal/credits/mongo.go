package credits

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection and document name constants.
const (
	colUsers     = "users"
	colPlan      = "plan"
	planLimitsID = "limits"
)

// compile-time interface checks
var (
	_ Store   = (*MongoStore)(nil)
	_ Catalog = (*MongoCatalog)(nil)
)

type limitsModel struct {
	Limit   int64 `bson:"limit"`
	Pending int64 `bson:"pending_usage"`
	Used    int64 `bson:"used_usage"`
}

type userModel struct {
	ID     string      `bson:"_id"`
	Limits limitsModel `bson:"limits"`
}

func fromLimitsModel(m limitsModel) Ledger {
	return Ledger{
		Limit:   nonNegative(m.Limit),
		Pending: nonNegative(m.Pending),
		Used:    nonNegative(m.Used),
	}
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// MongoStore keeps ledgers under users/{id}.limits and updates them inside
// multi-document transactions. The driver's WithTransaction re-runs the
// callback on transient transaction errors (write conflicts), which gives the
// retry-on-conflict contract. Requires a replica set or sharded cluster.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

// NewMongoStore creates a ledger store in the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		users:  client.Database(database).Collection(colUsers),
	}
}

// Get returns the user's ledger.
func (s *MongoStore) Get(ctx context.Context, userID string) (Ledger, error) {
	var m userModel
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Ledger{}, ErrLedgerNotFound
		}
		return Ledger{}, fmt.Errorf("credits/mongo: get ledger: %w", err)
	}
	return fromLimitsModel(m.Limits), nil
}

// TransactionalUpdate implements Store.TransactionalUpdate.
func (s *MongoStore) TransactionalUpdate(ctx context.Context, userID string, fn Transition) (Ledger, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return Ledger{}, fmt.Errorf("%w: start session: %w", ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		var m userModel
		found := true
		if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&m); err != nil {
			if !errors.Is(err, mongo.ErrNoDocuments) {
				return nil, err
			}
			found = false
		}

		cur := fromLimitsModel(m.Limits)
		next, err := fn(cur, found)
		if errors.Is(err, ErrNoWrite) {
			return cur, nil
		}
		if err != nil {
			return nil, err
		}

		update := bson.M{"$set": bson.M{
			"limits.limit":         int64(next.Limit),
			"limits.pending_usage": int64(next.Pending),
			"limits.used_usage":    int64(next.Used),
		}}
		if _, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update, options.UpdateOne().SetUpsert(true)); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrLedgerNotFound) {
			return Ledger{}, err
		}
		return Ledger{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	l, _ := res.(Ledger)
	return l, nil
}

// MongoCatalog reads unit costs from the plan/limits document.
type MongoCatalog struct {
	plan *mongo.Collection
}

// NewMongoCatalog creates a catalog reader for the given database.
func NewMongoCatalog(client *mongo.Client, database string) *MongoCatalog {
	return &MongoCatalog{plan: client.Database(database).Collection(colPlan)}
}

// GetCosts returns every numeric field of plan/limits keyed by operation kind.
func (c *MongoCatalog) GetCosts(ctx context.Context) (map[OperationKind]uint64, error) {
	var doc bson.M
	if err := c.plan.FindOne(ctx, bson.M{"_id": planLimitsID}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("credits/mongo: get costs: %w", err)
	}

	costs := make(map[OperationKind]uint64, len(doc))
	for k, v := range doc {
		switch n := v.(type) {
		case int32:
			costs[OperationKind(k)] = nonNegative(int64(n))
		case int64:
			costs[OperationKind(k)] = nonNegative(n)
		case float64:
			costs[OperationKind(k)] = nonNegative(int64(n))
		}
	}
	return costs, nil
}
