package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

var (
	// errNoCandidates is one empty relaxation step. It only moves the ladder on.
	errNoCandidates = errors.New("scheduler: no candidates at this delay factor")

	// ErrCategoryExhausted means every factor came back empty while the build's
	// exclusion set still holds members of the category. It triggers a reset.
	ErrCategoryExhausted = errors.New("scheduler: category exhausted")

	ErrNoContentAvailable   = errors.New("scheduler: no content available")
	ErrRotationCycleFailure = errors.New("scheduler: category failed across a full rotation cycle")
	ErrTooManyErrors        = errors.New("scheduler: error limit exceeded")
	ErrTransientStore       = retry.ErrTransientStore

	ErrInvalidRequest  = errors.New("scheduler: invalid request")
	ErrBuildInProgress = errors.New("scheduler: a build for this range is already running")
)

// Pool slot failure reasons.
const (
	ReasonNoAssignment       = "no assignment for day"
	ReasonAssignedIneligible = "assigned members ineligible"
)

// NoContentError reports a slot that could not be filled even after a reset.
type NoContentError struct {
	Slot          string
	Category      model.Category
	PoolID        int
	Reason        string
	CatalogSize   int
	ExclusionSize int
	Elapsed       time.Duration
	PostReset     bool
}

func (e *NoContentError) Error() string {
	msg := fmt.Sprintf("scheduler: no content available for %s", e.Slot)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return fmt.Sprintf("%s (catalog %d, excluded %d, elapsed %s, post-reset %t)",
		msg, e.CatalogSize, e.ExclusionSize, e.Elapsed, e.PostReset)
}

func (e *NoContentError) Is(target error) bool { return target == ErrNoContentAvailable }
