package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const colJobs = "jobs"

// Compile-time check that MongoRepository implements Repository.
var _ Repository = (*MongoRepository)(nil)

// MongoRepository stores jobs as documents. Updates are $set operations on
// dotted paths, so a status write and a results.<id> write never clobber
// each other.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a job repository in the given database.
func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	return &MongoRepository{col: client.Database(database).Collection(colJobs)}
}

// Create implements Repository.Create.
func (r *MongoRepository) Create(ctx context.Context, job *Job) error {
	if _, err := r.col.InsertOne(ctx, job); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrJobExists
		}
		return fmt.Errorf("job/mongo: create: %w", err)
	}
	return nil
}

// Get implements Repository.Get.
func (r *MongoRepository) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job/mongo: get: %w", err)
	}
	if job.Results == nil {
		job.Results = make(map[string]Artifact)
	}
	return &job, nil
}

// MergeUpdate implements Repository.MergeUpdate.
func (r *MongoRepository) MergeUpdate(ctx context.Context, id string, u Update) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": setFields(u)})
	if err != nil {
		return fmt.Errorf("job/mongo: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CompareAndSetStatus implements Repository.CompareAndSetStatus.
func (r *MongoRepository) CompareAndSetStatus(ctx context.Context, id string, from, to Status, message string) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	filter := bson.M{"_id": id, "status": from}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": setFields(StatusUpdate(to, message))})
	if err != nil {
		return fmt.Errorf("job/mongo: compare and set: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: is %s, expected %s", ErrStatusConflict, current.Status, from)
}

func setFields(u Update) bson.M {
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.Message != nil {
		set["status_message"] = *u.Message
	}
	if u.CreditsConsumed != nil {
		set["credits_consumed"] = int64(*u.CreditsConsumed)
	}
	for k, a := range u.Results {
		set["results."+k] = a
	}
	return set
}
