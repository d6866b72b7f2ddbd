package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence errors that every implementation returns (wrapped) so the
// service layer can map them without knowing the storage engine.
var (
	ErrStatusNotFound      = errors.New("status not found")
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrStepNotFound        = errors.New("workflow step not found")
	ErrTransitionNotFound  = errors.New("workflow transition not found")
	ErrProjectTypeNotFound = errors.New("project type not found")

	// ErrDuplicateStepStatus indicates the (workflow, status) pair already exists.
	ErrDuplicateStepStatus = errors.New("status already used in workflow")
	// ErrDuplicateStepOrder indicates the (workflow, step order) pair already exists.
	ErrDuplicateStepOrder = errors.New("step order already used in workflow")
	// ErrDuplicateInitialStep indicates the workflow already has an initial step.
	ErrDuplicateInitialStep = errors.New("workflow already has an initial step")
	// ErrDuplicateTransition indicates the (workflow, from, to) edge already exists.
	ErrDuplicateTransition = errors.New("transition already exists")
	// ErrInvalidReference indicates a foreign key did not resolve.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrReferenced indicates a row cannot be removed while other rows point at it.
	ErrReferenced = errors.New("row is still referenced")
)

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStatusNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrTransitionNotFound) ||
		errors.Is(err, ErrProjectTypeNotFound)
}

// IsUniqueViolation reports whether err is any of the uniqueness sentinels.
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrDuplicateStepStatus) ||
		errors.Is(err, ErrDuplicateStepOrder) ||
		errors.Is(err, ErrDuplicateInitialStep) ||
		errors.Is(err, ErrDuplicateTransition)
}

// EntityError wraps a persistence error with the operation and row it concerns.
type EntityError struct {
	Op     string // Operation being performed (e.g. "CreateStep", "DeleteTransition")
	Entity string // Entity kind (e.g. "step")
	ID     string // Row identifier if known
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}
