package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/shortsgen-api/internal/auth"
	"github.com/maauso/shortsgen-api/internal/credits"
	"github.com/maauso/shortsgen-api/internal/job"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// JobService is the job use-case port the handlers call.
type JobService interface {
	CreateJob(ctx context.Context, ownerID string, kind job.Kind, params job.Params) (*job.Job, error)
	GetJob(ctx context.Context, jobID, ownerID string) (*job.Job, error)
	RunJob(ctx context.Context, jobID, callerID string) (*job.Result, error)
}

// CreditReader reads a user's ledger.
type CreditReader interface {
	Balance(ctx context.Context, userID string) (credits.Ledger, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   JobService
	credits   CreditReader
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, creditReader CreditReader, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		credits:   creditReader,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /v1/jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	kind := job.KindShorts
	if req.Kind != "" {
		kind = job.Kind(req.Kind)
	}

	params, err := job.ParseParams(req.GenRequest)
	if err != nil {
		h.writeServiceError(w, &job.RunError{Kind: job.ErrKindValidation, Detail: err.Error(), Err: err, Details: validationDetails(err)})
		return
	}

	created, err := h.service.CreateJob(r.Context(), auth.UserID(r.Context()), kind, params)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// RunJob handles POST /v1/jobs/run requests. It blocks until the job is
// settled.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	var req RunJobRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "jobId is required", "MISSING_JOB_ID")
		return
	}

	res, err := h.service.RunJob(r.Context(), req.JobID, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RunJobResponse{
		Status:          string(res.Status),
		Message:         res.Message,
		BuildID:         res.BuildID,
		VideosGenerated: res.VideosGenerated,
		VideosRequested: res.VideosRequested,
		Warning:         res.Warning,
		CreditsConsumed: res.CreditsConsumed,
	})
}

// GetJob handles GET /v1/jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID, auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// GetCredits handles GET /v1/credits requests.
func (h *Handlers) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	l, err := h.credits.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read credits",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read credits", "LEDGER_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, CreditsResponse{
		Limit:     l.Limit,
		Pending:   l.Pending,
		Used:      l.Used,
		Available: l.Available(),
	})
}

// Unauthorized is the deny handler for the auth middleware.
func Unauthorized(w http.ResponseWriter, err error) {
	msg := "invalid bearer token"
	if errors.Is(err, auth.ErrMissingHeader) || errors.Is(err, auth.ErrNotBearer) {
		msg = "missing or invalid Authorization header"
	}
	writeError(w, http.StatusUnauthorized, msg, "UNAUTHORIZED")
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var re *job.RunError
	if !errors.As(err, &re) {
		h.logger.Error("unexpected service error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		return
	}

	resp := ErrorResponse{Error: re.Detail, Details: re.Details}
	status := http.StatusInternalServerError
	switch re.Kind {
	case job.ErrKindValidation:
		status, resp.Code = http.StatusBadRequest, "VALIDATION_ERROR"
	case job.ErrKindInsufficientCredits:
		status, resp.Code = http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"
		available := re.Available
		resp.Available = &available
	case job.ErrKindNotFound:
		status, resp.Code = http.StatusNotFound, "JOB_NOT_FOUND"
	case job.ErrKindConflict:
		status, resp.Code = http.StatusConflict, "JOB_CONFLICT"
	case job.ErrKindLedger:
		resp.Code = "LEDGER_ERROR"
	default:
		resp.Code = "INTERNAL_ERROR"
	}
	if re.CreditsConsumed > 0 {
		consumed := re.CreditsConsumed
		resp.CreditsConsumed = &consumed
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("kind", string(re.Kind)), slog.String("error", err.Error()))
	}
	writeJSON(w, status, resp)
}

func toJobResponse(j *job.Job) JobResponse {
	results := make([]ArtifactResponse, 0, len(j.Results))
	for _, a := range j.Results {
		results = append(results, ArtifactResponse{
			ID:          a.ID,
			URL:         a.URL,
			MimeType:    a.MimeType,
			Type:        a.Type,
			Title:       a.Title,
			Source:      a.Source,
			GeneratedAt: a.ProducedAt,
		})
	}
	sort.Slice(results, func(i, k int) bool {
		if !results[i].GeneratedAt.Equal(results[k].GeneratedAt) {
			return results[i].GeneratedAt.Before(results[k].GeneratedAt)
		}
		return results[i].ID < results[k].ID
	})

	return JobResponse{
		ID:              j.ID,
		Kind:            string(j.Kind),
		Status:          string(j.Status),
		StatusMessage:   j.Message,
		Results:         results,
		CreditsConsumed: j.CreditsConsumed,
		CreatedAt:       j.CreatedAt,
		LastUpdatedAt:   j.UpdatedAt,
	}
}

func validationDetails(err error) []string {
	var ve *job.ValidationError
	if errors.As(err, &ve) {
		return ve.Messages
	}
	return nil
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
