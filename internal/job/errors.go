package job

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, client-visible category of a RunError.
type ErrorKind string

// Error kinds returned by the Service.
const (
	ErrKindValidation          ErrorKind = "validation"
	ErrKindInsufficientCredits ErrorKind = "insufficient_credits"
	ErrKindNotFound            ErrorKind = "not_found"
	ErrKindConflict            ErrorKind = "conflict"
	ErrKindLedger              ErrorKind = "ledger"
	ErrKindInternal            ErrorKind = "internal"
)

// RunError is the structured failure of a Service operation. Detail is the
// human-readable text persisted as the job's status message when the job
// reached a terminal state.
type RunError struct {
	Kind    ErrorKind
	Detail  string
	Details []string
	// Available is set for ErrKindInsufficientCredits.
	Available uint64
	// CreditsConsumed is what the ledger committed before a settlement
	// failure. Set for ErrKindLedger and ErrKindInternal.
	CreditsConsumed uint64
	Err             error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a *RunError in err's chain, or ErrKindInternal.
func KindOf(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrKindInternal
}

func newRunError(kind ErrorKind, detail string, err error) *RunError {
	return &RunError{Kind: kind, Detail: detail, Err: err}
}
