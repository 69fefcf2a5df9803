// Package notify delivers terminal job events to a per-user notification inbox.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUserIDRequired is returned when a notification has no recipient.
var ErrUserIDRequired = errors.New("notify: user ID is required")

// EventKind identifies what happened to a job.
type EventKind string

// Event kinds emitted on terminal job states.
const (
	EventShortGenerated     EventKind = "SHORT_GENERATED"
	EventShortFailed        EventKind = "SHORT_FAILED"
	EventSubtitlesGenerated EventKind = "SUBTITLES_GENERATED"
	EventSubtitlesFailed    EventKind = "SUBTITLES_FAILED"
)

// Author marks who raised a notification.
type Author struct {
	IsSystem bool `json:"isSystem" bson:"isSystem"`
}

// Notification is one inbox item.
type Notification struct {
	ID           string    `json:"id" bson:"id"`
	TargetID     string    `json:"targetId" bson:"targetId"`
	Type         string    `json:"type" bson:"type"`
	SpecificType EventKind `json:"specific_type" bson:"specific_type"`
	Tags         []string  `json:"tags" bson:"tags"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	Read         bool      `json:"read" bson:"read"`
	By           Author    `json:"by" bson:"by"`
}

// Notifier sends a notification about targetID to userID.
type Notifier interface {
	Send(ctx context.Context, userID string, kind EventKind, targetID string) error
}

// Build creates the inbox item for kind.
func Build(kind EventKind, targetID string, now time.Time) Notification {
	n := Notification{
		ID:           uuid.NewString(),
		TargetID:     targetID,
		Type:         "info",
		SpecificType: kind,
		CreatedAt:    now.UTC(),
		By:           Author{IsSystem: true},
	}
	switch kind {
	case EventShortGenerated:
		n.Type, n.Tags = "success", []string{"shorts"}
	case EventShortFailed:
		n.Type, n.Tags = "error", []string{"shorts"}
	case EventSubtitlesGenerated:
		n.Type, n.Tags = "success", []string{"subtitles"}
	case EventSubtitlesFailed:
		n.Type, n.Tags = "error", []string{"subtitles"}
	default:
		n.Tags = []string{}
	}
	return n
}

// compile-time interface check
var _ Notifier = (*MemoryNotifier)(nil)

// MemoryNotifier keeps notifications in memory and logs each one.
type MemoryNotifier struct {
	mu     sync.Mutex
	inbox  map[string][]Notification
	logger *slog.Logger
}

// NewMemoryNotifier creates a MemoryNotifier. A nil logger uses slog.Default().
func NewMemoryNotifier(logger *slog.Logger) *MemoryNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryNotifier{
		inbox:  make(map[string][]Notification),
		logger: logger,
	}
}

// Send implements Notifier.
func (m *MemoryNotifier) Send(_ context.Context, userID string, kind EventKind, targetID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	n := Build(kind, targetID, time.Now())

	m.mu.Lock()
	m.inbox[userID] = append(m.inbox[userID], n)
	m.mu.Unlock()

	m.logger.Info("notification sent",
		slog.String("user_id", userID),
		slog.String("kind", string(kind)),
		slog.String("target_id", targetID),
	)
	return nil
}

// Inbox returns a copy of the user's notifications in send order.
func (m *MemoryNotifier) Inbox(userID string) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.inbox[userID]))
	copy(out, m.inbox[userID])
	return out
}
