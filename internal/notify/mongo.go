package notify

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const colNotifications = "notifications"

// compile-time interface check
var _ Notifier = (*MongoNotifier)(nil)

// MongoNotifier stores items under notifications/{userID}.items.{id}. The
// single upsert creates the inbox document on first use.
type MongoNotifier struct {
	col *mongo.Collection
	now func() time.Time
}

// NewMongoNotifier creates a MongoNotifier in the given database.
func NewMongoNotifier(client *mongo.Client, database string) *MongoNotifier {
	return &MongoNotifier{
		col: client.Database(database).Collection(colNotifications),
		now: time.Now,
	}
}

// Send implements Notifier.
func (m *MongoNotifier) Send(ctx context.Context, userID string, kind EventKind, targetID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	n := Build(kind, targetID, m.now())

	update := bson.M{"$set": bson.M{"items." + n.ID: n}}
	if _, err := m.col.UpdateOne(ctx, bson.M{"_id": userID}, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return fmt.Errorf("notify/mongo: send: %w", err)
	}
	return nil
}
