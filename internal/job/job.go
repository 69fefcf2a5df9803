// Package job holds the Job aggregate, its persistence ports and the
// orchestrator that runs a job's items through the clip pipeline while
// reserving and settling the owner's credits.
package job

import (
	"errors"
	"maps"
	"time"

	"github.com/maauso/shortsgen-api/internal/job/id"
)

// Kind selects the pipeline a job runs.
type Kind string

const (
	// KindShorts cuts each input into several captioned clips.
	KindShorts Kind = "shorts"
	// KindSubtitles burns captions into each input as a whole.
	KindSubtitles Kind = "subtitles"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindShorts || k == KindSubtitles
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting to be run.
	StatusQueued Status = "queued"
	// StatusRunning indicates the job has been claimed and is being processed.
	StatusRunning Status = "running"
	// StatusCompleted indicates at least one output was produced.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the job produced nothing or could not run.
	StatusFailed Status = "failed"
)

// IsTerminal returns true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Artifact references one published output clip.
type Artifact struct {
	ID         string    `json:"id" bson:"id"`
	URL        string    `json:"url" bson:"url"`
	MimeType   string    `json:"mimeType" bson:"mimeType"`
	Type       string    `json:"type" bson:"type"`
	Title      string    `json:"title,omitempty" bson:"title,omitempty"`
	Source     string    `json:"source,omitempty" bson:"source,omitempty"`
	ProducedAt time.Time `json:"generatedAt" bson:"generatedAt"`
}

// Job is a persisted generation request and its outcome.
type Job struct {
	ID      string `json:"id" bson:"_id"`
	OwnerID string `json:"ownerId" bson:"owner_id"`
	Kind    Kind   `json:"kind" bson:"kind"`
	Status  Status `json:"status" bson:"status"`
	// Message summarizes the outcome; it mirrors what RunJob returned.
	Message string `json:"statusMessage,omitempty" bson:"status_message,omitempty"`
	Params  Params `json:"params" bson:"params"`
	// Results grows as clips are published and is never rewritten.
	Results         map[string]Artifact `json:"results" bson:"results"`
	CreditsConsumed uint64              `json:"creditsConsumed" bson:"credits_consumed"`
	CreatedAt       time.Time           `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time           `json:"lastUpdatedAt" bson:"updated_at"`
}

// New creates a queued Job with a generated ID.
func New(ownerID string, kind Kind, params Params) *Job {
	return NewWithID(id.Generate(), ownerID, kind, params)
}

// NewWithID creates a queued Job with the given ID.
func NewWithID(jobID, ownerID string, kind Kind, params Params) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        jobID,
		OwnerID:   ownerID,
		Kind:      kind,
		Status:    StatusQueued,
		Params:    params,
		Results:   make(map[string]Artifact),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	c := *j
	c.Results = maps.Clone(j.Results)
	if c.Results == nil {
		c.Results = make(map[string]Artifact)
	}
	c.Params = j.Params.clone()
	return &c
}

// Update is a partial write. Nil fields are left untouched and Results
// entries are added to, never replacing, the existing map.
type Update struct {
	Status          *Status
	Message         *string
	Results         map[string]Artifact
	CreditsConsumed *uint64
}

// StatusUpdate sets status and message together.
func StatusUpdate(status Status, message string) Update {
	return Update{Status: &status, Message: &message}
}

// ResultUpdate adds one artifact.
func ResultUpdate(a Artifact) Update {
	return Update{Results: map[string]Artifact{a.ID: a}}
}

// apply merges u into j.
func (u Update) apply(j *Job, now time.Time) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.CreditsConsumed != nil {
		j.CreditsConsumed = *u.CreditsConsumed
	}
	if len(u.Results) > 0 && j.Results == nil {
		j.Results = make(map[string]Artifact, len(u.Results))
	}
	for k, v := range u.Results {
		j.Results[k] = v
	}
	j.UpdatedAt = now
}
