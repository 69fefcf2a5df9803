package job

import (
	"context"
	"errors"
)

// Static errors for job persistence.
var (
	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")
	// ErrStatusConflict is returned when a compare-and-set finds another status.
	ErrStatusConflict = errors.New("job status changed concurrently")
)

// Repository defines the interface for job persistence.
// It acts as a port in the hexagonal architecture pattern.
type Repository interface {
	// Create persists a new job. Returns ErrJobExists if the ID is taken.
	Create(ctx context.Context, job *Job) error

	// Get retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, id string) (*Job, error)

	// MergeUpdate applies a partial write. Concurrent updates touching
	// different fields or different result IDs all survive.
	MergeUpdate(ctx context.Context, id string, u Update) error

	// CompareAndSetStatus moves the job from one status to another in one
	// atomic step. Returns ErrStatusConflict if the job is not in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, message string) error
}
