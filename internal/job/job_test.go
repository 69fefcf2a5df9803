package job

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	job := New("user-1", KindShorts, Params{})

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.OwnerID != "user-1" {
		t.Errorf("expected owner user-1, got %s", job.OwnerID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if job.Results == nil {
		t.Error("expected Results to be initialized")
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id, "user-1", KindSubtitles, Params{})

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Kind != KindSubtitles {
		t.Errorf("expected kind %s, got %s", KindSubtitles, job.Kind)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"queued to running", StatusQueued, StatusRunning, true},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"queued to completed", StatusQueued, StatusCompleted, false},
		{"queued to failed", StatusQueued, StatusFailed, false},
		{"running to queued", StatusRunning, StatusQueued, false},
		{"completed to running", StatusCompleted, StatusRunning, false},
		{"failed to queued", StatusFailed, StatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestKind_IsValid(t *testing.T) {
	if !KindShorts.IsValid() || !KindSubtitles.IsValid() {
		t.Error("expected known kinds to be valid")
	}
	if Kind("podcast").IsValid() {
		t.Error("expected unknown kind to be invalid")
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("user-1", KindShorts, Params{
		Inputs: map[string]InputRef{"a": {URL: "s3://b/a.mp4"}},
		Style:  map[string]any{"textColor": "#112233"},
	})
	job.Results["r1"] = Artifact{ID: "r1", URL: "u1"}

	clone := job.Clone()
	clone.Results["r2"] = Artifact{ID: "r2"}
	clone.Params.Inputs["b"] = InputRef{URL: "s3://b/b.mp4"}
	clone.Params.Style["fontSize"] = 40

	if len(job.Results) != 1 {
		t.Errorf("expected original to keep 1 result, got %d", len(job.Results))
	}
	if len(job.Params.Inputs) != 1 {
		t.Errorf("expected original to keep 1 input, got %d", len(job.Params.Inputs))
	}
	if _, ok := job.Params.Style["fontSize"]; ok {
		t.Error("expected original style to be unchanged")
	}
}

func TestUpdate_Apply(t *testing.T) {
	job := New("user-1", KindShorts, Params{})
	job.Message = "Processing"
	job.Results["r1"] = Artifact{ID: "r1"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ResultUpdate(Artifact{ID: "r2"}).apply(job, now)

	if job.Message != "Processing" {
		t.Errorf("expected message untouched, got %q", job.Message)
	}
	if len(job.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(job.Results))
	}
	if !job.UpdatedAt.Equal(now) {
		t.Errorf("expected UpdatedAt %v, got %v", now, job.UpdatedAt)
	}

	consumed := uint64(15)
	u := StatusUpdate(StatusCompleted, "Job Processed")
	u.CreditsConsumed = &consumed
	u.apply(job, now)

	if job.Status != StatusCompleted || job.Message != "Job Processed" {
		t.Errorf("unexpected status %s %q", job.Status, job.Message)
	}
	if job.CreditsConsumed != 15 {
		t.Errorf("expected 15 credits consumed, got %d", job.CreditsConsumed)
	}
	if len(job.Results) != 2 {
		t.Errorf("expected results untouched, got %d", len(job.Results))
	}
}
