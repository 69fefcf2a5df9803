// Package server provides the HTTP API for shortsgen.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"encoding/json"
	"time"
)

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// Kind is "shorts" (default) or "subtitles".
	Kind string `json:"kind"`
	// GenRequest holds the generation parameters.
	GenRequest json.RawMessage `json:"genRequest"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RunJobRequest is the HTTP request body for triggering a job.
type RunJobRequest struct {
	JobID string `json:"jobId" validate:"required"`
}

// RunJobResponse is the HTTP response of a finished run.
type RunJobResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	BuildID         string `json:"buildId"`
	VideosGenerated int    `json:"videosGenerated"`
	VideosRequested int    `json:"videosRequested"`
	Warning         string `json:"warning,omitempty"`
	CreditsConsumed uint64 `json:"creditsConsumed"`
}

// ArtifactResponse is one published output.
type ArtifactResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	MimeType    string    `json:"mimeType"`
	Type        string    `json:"type"`
	Title       string    `json:"title,omitempty"`
	Source      string    `json:"source,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID              string             `json:"id"`
	Kind            string             `json:"kind"`
	Status          string             `json:"status"`
	StatusMessage   string             `json:"statusMessage,omitempty"`
	Results         []ArtifactResponse `json:"results"`
	CreditsConsumed uint64             `json:"creditsConsumed"`
	CreatedAt       time.Time          `json:"createdAt"`
	LastUpdatedAt   time.Time          `json:"lastUpdatedAt"`
}

// CreditsResponse is the caller's ledger.
type CreditsResponse struct {
	Limit     uint64 `json:"limit"`
	Pending   uint64 `json:"pending"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Details lists every validation failure.
	Details []string `json:"details,omitempty"`
	// Available is set on INSUFFICIENT_CREDITS.
	Available *uint64 `json:"available,omitempty"`
	// CreditsConsumed is set when a failed run still committed credits.
	CreditsConsumed *uint64 `json:"creditsConsumed,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
