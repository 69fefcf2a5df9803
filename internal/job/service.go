package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"

	"github.com/maauso/shortsgen-api/internal/credits"
	"github.com/maauso/shortsgen-api/internal/notify"
	"github.com/maauso/shortsgen-api/internal/pipeline"
	"github.com/maauso/shortsgen-api/internal/storage"
	"github.com/maauso/shortsgen-api/internal/style"
)

// Status messages persisted on the job and returned to the caller.
const (
	msgRunning          = "Processing"
	msgProcessed        = "Job Processed"
	msgPartialWarning   = "Partial success or failure in some segments."
	msgSettlementFailed = "Credit settlement failed"
	msgReserveFailed    = "Credit reservation failed"
	msgWorkspaceFailed  = "Could not prepare a workspace"
	msgInternal         = "Internal error while processing the job"
)

// settlement phases of a shorts run, used to settle exactly once when the run
// panics.
const (
	phaseReserved = iota
	phaseSettling
	phaseSettled
)

// Ledger is the slice of the credit accountant the orchestrator needs.
type Ledger interface {
	Reserve(ctx context.Context, userID string, amount uint64) error
	Commit(ctx context.Context, userID string, amount uint64) error
	Release(ctx context.Context, userID string, amount uint64) error
	GetUnitCost(ctx context.Context, kind credits.OperationKind) uint64
}

// Workspaces creates per-run scratch directories.
type Workspaces interface {
	NewWorkspace(name string) (*storage.Workspace, error)
}

// Result is the synchronous outcome of RunJob. Message always equals the
// status message persisted on the job.
type Result struct {
	Status          Status `json:"status"`
	Message         string `json:"message"`
	BuildID         string `json:"buildId"`
	VideosGenerated int    `json:"videosGenerated"`
	VideosRequested int    `json:"videosRequested"`
	Warning         string `json:"warning,omitempty"`
	CreditsConsumed uint64 `json:"creditsConsumed"`
}

// Service creates, runs and reports jobs.
type Service struct {
	repo       Repository
	ledger     Ledger
	processor  *ItemProcessor
	workspaces Workspaces
	notifier   notify.Notifier
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithNotifier sets the terminal-state notifier.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. Without WithNotifier, terminal events are
// only logged.
func NewService(repo Repository, ledger Ledger, processor *ItemProcessor, workspaces Workspaces, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		ledger:     ledger,
		processor:  processor,
		workspaces: workspaces,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewMemoryNotifier(s.logger)
	}
	return s
}

// CreateJob validates params and stores a queued job owned by ownerID.
func (s *Service) CreateJob(ctx context.Context, ownerID string, kind Kind, params Params) (*Job, error) {
	if !kind.IsValid() {
		return nil, &RunError{Kind: ErrKindValidation, Detail: "Unsupported job kind: " + string(kind)}
	}
	if err := params.Validate(kind); err != nil {
		return nil, validationError(err)
	}

	j := New(ownerID, kind, params)
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, newRunError(ErrKindInternal, "Could not create job", err)
	}

	s.logger.Info("job created",
		slog.String("job_id", j.ID),
		slog.String("owner_id", ownerID),
		slog.String("kind", string(kind)),
		slog.Int("items", len(params.Items())),
	)
	return j, nil
}

// GetJob returns the job if ownerID owns it. Jobs of other owners are
// reported as not found.
func (s *Service) GetJob(ctx context.Context, jobID, ownerID string) (*Job, error) {
	j, err := s.repo.Get(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) || (err == nil && j.OwnerID != ownerID) {
		return nil, newRunError(ErrKindNotFound, "Job not found", ErrJobNotFound)
	}
	if err != nil {
		return nil, newRunError(ErrKindInternal, "Could not load job", err)
	}
	return j, nil
}

// RunJob claims a queued job and runs it to a terminal state. Once the job
// is claimed, cancellation of ctx no longer interrupts the run so the
// reservation is always settled.
func (s *Service) RunJob(ctx context.Context, jobID, callerID string) (*Result, error) {
	j, err := s.GetJob(ctx, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusQueued {
		return nil, newRunError(ErrKindConflict, fmt.Sprintf("Job is already %s", j.Status), ErrStatusConflict)
	}
	if err := s.repo.CompareAndSetStatus(ctx, j.ID, StatusQueued, StatusRunning, msgRunning); err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrInvalidTransition) {
			return nil, newRunError(ErrKindConflict, "Job was claimed by another run", err)
		}
		return nil, newRunError(ErrKindInternal, "Could not start job", err)
	}
	j.Status = StatusRunning

	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With(slog.String("job_id", j.ID), slog.String("owner_id", j.OwnerID))
	logger.Info("job started", slog.String("kind", string(j.Kind)))

	if err := j.Params.Validate(j.Kind); err != nil {
		re := validationError(err)
		s.finish(ctx, logger, j, StatusFailed, re.Detail, 0)
		return nil, re
	}

	ws, err := s.workspaces.NewWorkspace(j.ID)
	if err != nil {
		s.finish(ctx, logger, j, StatusFailed, msgWorkspaceFailed, 0)
		return nil, newRunError(ErrKindInternal, msgWorkspaceFailed, err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("failed to remove workspace", slog.String("error", err.Error()))
		}
	}()

	if j.Kind == KindSubtitles {
		return s.runSubtitles(ctx, logger, j, ws)
	}
	return s.runShorts(ctx, logger, j, ws)
}

func (s *Service) runShorts(ctx context.Context, logger *slog.Logger, j *Job, ws *storage.Workspace) (res *Result, err error) {
	items := j.Params.Items()
	totalUnits := len(items) * j.Params.NumberOfClips
	unitCost := s.ledger.GetUnitCost(ctx, credits.KindShortsGeneration)
	totalCost, err := credits.Cost(uint64(totalUnits), unitCost)
	if err != nil {
		return nil, s.reserveFailed(ctx, logger, j, err)
	}

	if err := s.ledger.Reserve(ctx, j.OwnerID, totalCost); err != nil {
		return nil, s.reserveFailed(ctx, logger, j, err)
	}
	logger.Info("credits reserved",
		slog.Int("units", totalUnits),
		slog.Uint64("unit_cost", unitCost),
		slog.Uint64("amount", totalCost),
	)

	var (
		successful int
		committed  uint64
		phase      = phaseReserved
	)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("job run panicked",
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())),
		)
		var serr error
		switch phase {
		case phaseReserved:
			phase = phaseSettling
			serr = protect(func() error {
				return s.settle(ctx, j.OwnerID, uint64(successful)*unitCost, totalCost, &committed)
			})
		case phaseSettling:
			// Whatever the interrupted settlement did not commit goes back.
			if rest := totalCost - min(committed, totalCost); rest > 0 {
				serr = protect(func() error { return s.ledger.Release(ctx, j.OwnerID, rest) })
			}
		}
		phase = phaseSettled
		if serr != nil {
			logger.Error("settlement after panic failed", slog.String("error", serr.Error()))
		}
		if ferr := protect(func() error {
			s.finish(ctx, logger, j, StatusFailed, msgInternal, committed)
			return nil
		}); ferr != nil {
			logger.Error("failed to record panicked run", slog.String("error", ferr.Error()))
		}
		re := newRunError(ErrKindInternal, msgInternal, fmt.Errorf("panic: %v", r))
		re.CreditsConsumed = committed
		res, err = nil, re
	}()

	plan := Plan{
		JobID:   j.ID,
		OwnerID: j.OwnerID,
		Params:  j.Params,
		Style:   style.Merge(j.Params.Style),
	}
	record := s.recorder(j.ID)

	for i, item := range items {
		n, ierr := s.bulkhead(logger, item, func() (int, error) {
			dir, err := ws.ItemDir(i)
			if err != nil {
				return 0, err
			}
			return s.processor.Process(ctx, dir, item, plan, record)
		})
		successful += n
		if ierr != nil {
			logger.Warn("item failed",
				slog.String("item", item.Key),
				slog.Int("units", n),
				slog.String("error", ierr.Error()),
			)
			continue
		}
		logger.Info("item processed", slog.String("item", item.Key), slog.Int("units", n))
	}

	consumed := uint64(successful) * unitCost
	phase = phaseSettling
	err = s.settle(ctx, j.OwnerID, consumed, totalCost, &committed)
	phase = phaseSettled
	if err != nil {
		logger.Error("credit settlement failed",
			slog.Uint64("commit", consumed),
			slog.Uint64("committed", committed),
			slog.Uint64("release", totalCost-consumed),
			slog.String("error", err.Error()),
		)
		s.finish(ctx, logger, j, StatusFailed, msgSettlementFailed, committed)
		re := newRunError(ErrKindLedger, msgSettlementFailed, err)
		re.CreditsConsumed = committed
		return nil, re
	}

	res = &Result{
		BuildID:         j.ID,
		VideosGenerated: successful,
		VideosRequested: totalUnits,
		CreditsConsumed: consumed,
	}
	failed := totalUnits - successful
	switch {
	case successful == 0:
		res.Status = StatusFailed
		res.Message = fmt.Sprintf("No shorts generated: %d of %d shorts failed", failed, totalUnits)
	case failed > 0:
		res.Status = StatusCompleted
		res.Message = fmt.Sprintf("%s: %d of %d shorts failed", msgProcessed, failed, totalUnits)
		res.Warning = msgPartialWarning
	default:
		res.Status = StatusCompleted
		res.Message = msgProcessed
	}

	s.finish(ctx, logger, j, res.Status, res.Message, consumed)
	return res, nil
}

func (s *Service) runSubtitles(ctx context.Context, logger *slog.Logger, j *Job, ws *storage.Workspace) (*Result, error) {
	items := j.Params.Items()
	unitCost := s.ledger.GetUnitCost(ctx, credits.KindSubtitlesGeneration)
	plan := Plan{
		JobID:   j.ID,
		OwnerID: j.OwnerID,
		Params:  j.Params,
		Style:   style.Merge(j.Params.Style),
	}
	record := s.recorder(j.ID)

	var (
		successful int
		consumed   uint64
		ledgerErr  error
	)
	for i, item := range items {
		n, cost, lerr, ierr := s.subtitleItem(ctx, logger, ws, i, item, plan, unitCost, record)
		successful += n
		consumed += cost
		if lerr != nil {
			ledgerErr = errors.Join(ledgerErr, lerr)
		}
		if ierr != nil {
			logger.Warn("item failed", slog.String("item", item.Key), slog.String("error", ierr.Error()))
		}
	}

	if ledgerErr != nil {
		logger.Error("credit settlement failed", slog.String("error", ledgerErr.Error()))
		s.finish(ctx, logger, j, StatusFailed, msgSettlementFailed, consumed)
		re := newRunError(ErrKindLedger, msgSettlementFailed, ledgerErr)
		re.CreditsConsumed = consumed
		return nil, re
	}

	res := &Result{
		Status:          StatusCompleted,
		BuildID:         j.ID,
		VideosGenerated: successful,
		VideosRequested: len(items),
		CreditsConsumed: consumed,
	}
	switch {
	case successful == 0:
		res.Status = StatusFailed
		res.Message = fmt.Sprintf("Processed 0/%d videos", len(items))
	case successful < len(items):
		res.Message = fmt.Sprintf("Processed %d/%d videos", successful, len(items))
		res.Warning = msgPartialWarning
	default:
		res.Message = msgProcessed
	}

	s.finish(ctx, logger, j, res.Status, res.Message, consumed)
	return res, nil
}

// subtitleItem reserves, processes and settles one item of a subtitles job.
// The item's reservation is settled exactly once on every exit path.
func (s *Service) subtitleItem(ctx context.Context, logger *slog.Logger, ws *storage.Workspace, index int, item Item, plan Plan, unitCost uint64, record Recorder) (units int, consumed uint64, ledgerErr, itemErr error) {
	var src, dir string
	_, itemErr = s.bulkhead(logger, item, func() (int, error) {
		var err error
		if dir, err = ws.ItemDir(index); err != nil {
			return 0, err
		}
		var duration float64
		src, duration, err = s.processor.Acquire(ctx, dir, item)
		if err != nil {
			return 0, err
		}
		consumed, err = credits.Cost(max(uint64(math.Ceil(duration/60)), 1), unitCost)
		if err != nil {
			return 0, pipeline.Fail(pipeline.StageProbe, err)
		}
		return 0, nil
	})
	if itemErr != nil {
		return 0, 0, nil, itemErr
	}

	if err := protect(func() error { return s.ledger.Reserve(ctx, plan.OwnerID, consumed) }); err != nil {
		if !errors.Is(err, credits.ErrInsufficientCredits) {
			return 0, 0, err, err
		}
		logger.Warn("skipping item, insufficient credits",
			slog.String("item", item.Key),
			slog.Uint64("amount", consumed),
		)
		return 0, 0, nil, err
	}

	units, itemErr = s.bulkhead(logger, item, func() (int, error) {
		return s.processor.Subtitle(ctx, dir, src, item, plan, record)
	})
	if units == 0 {
		if err := protect(func() error { return s.ledger.Release(ctx, plan.OwnerID, consumed) }); err != nil {
			return 0, 0, err, itemErr
		}
		return 0, 0, nil, itemErr
	}
	if err := protect(func() error { return s.ledger.Commit(ctx, plan.OwnerID, consumed) }); err != nil {
		return units, 0, err, itemErr
	}
	return units, consumed, nil, itemErr
}

// bulkhead runs one item and converts a panic into an error so the next
// item still runs.
func (s *Service) bulkhead(logger *slog.Logger, item Item, fn func() (int, error)) (units int, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("item panicked",
				slog.String("item", item.Key),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("item %s panicked: %v", item.Key, r)
		}
	}()
	return fn()
}

func (s *Service) recorder(jobID string) Recorder {
	return func(ctx context.Context, a Artifact) error {
		return s.repo.MergeUpdate(ctx, jobID, ResultUpdate(a))
	}
}

// settle commits the consumed part of a reservation and releases the rest.
// Both halves are attempted even if the first fails. *committed is set as
// soon as the commit lands.
func (s *Service) settle(ctx context.Context, ownerID string, consumed, reserved uint64, committed *uint64) error {
	var errs []error
	if consumed > 0 {
		if err := s.ledger.Commit(ctx, ownerID, consumed); err != nil {
			errs = append(errs, fmt.Errorf("commit %d: %w", consumed, err))
		} else {
			*committed = consumed
		}
	}
	if rest := reserved - min(consumed, reserved); rest > 0 {
		if err := s.ledger.Release(ctx, ownerID, rest); err != nil {
			errs = append(errs, fmt.Errorf("release %d: %w", rest, err))
		}
	}
	return errors.Join(errs...)
}

// protect runs fn and turns a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (s *Service) reserveFailed(ctx context.Context, logger *slog.Logger, j *Job, err error) error {
	var ice *credits.InsufficientCreditsError
	if errors.As(err, &ice) {
		msg := ice.Error()
		logger.Info("insufficient credits",
			slog.Uint64("requested", ice.Requested),
			slog.Uint64("available", ice.Available),
		)
		s.finish(ctx, logger, j, StatusFailed, msg, 0)
		return &RunError{Kind: ErrKindInsufficientCredits, Detail: msg, Available: ice.Available, Err: err}
	}
	logger.Error("credit reservation failed", slog.String("error", err.Error()))
	s.finish(ctx, logger, j, StatusFailed, msgReserveFailed, 0)
	return newRunError(ErrKindLedger, msgReserveFailed, err)
}

// finish persists the terminal status and sends the matching notification.
// Neither failure changes the outcome of the run.
func (s *Service) finish(ctx context.Context, logger *slog.Logger, j *Job, status Status, message string, consumed uint64) {
	u := StatusUpdate(status, message)
	u.CreditsConsumed = &consumed
	if err := s.repo.MergeUpdate(ctx, j.ID, u); err != nil {
		logger.Error("failed to persist final status",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
	j.Status, j.Message, j.CreditsConsumed = status, message, consumed

	kind := terminalEvent(j.Kind, status)
	if err := s.notifier.Send(ctx, j.OwnerID, kind, j.ID); err != nil {
		logger.Warn("failed to send notification",
			slog.String("event", string(kind)),
			slog.String("error", err.Error()),
		)
	}
	logger.Info("job finished",
		slog.String("status", string(status)),
		slog.String("message", message),
		slog.Uint64("credits_consumed", consumed),
	)
}

func terminalEvent(kind Kind, status Status) notify.EventKind {
	switch {
	case kind == KindSubtitles && status == StatusCompleted:
		return notify.EventSubtitlesGenerated
	case kind == KindSubtitles:
		return notify.EventSubtitlesFailed
	case status == StatusCompleted:
		return notify.EventShortGenerated
	default:
		return notify.EventShortFailed
	}
}

func validationError(err error) *RunError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &RunError{Kind: ErrKindValidation, Detail: ve.Error(), Details: ve.Messages, Err: err}
	}
	return newRunError(ErrKindValidation, err.Error(), err)
}
