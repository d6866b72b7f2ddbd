// Package services implements the workflow definition and transition engine.
package services

import (
	"errors"
	"fmt"

	"github.com/pipecd-crm/wfm/pkg/persistence"
)

// Kind classifies a service error for callers and transports.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindBadInput          Kind = "bad_input"
	KindReference         Kind = "reference"
	KindBlockedDeletion   Kind = "blocked_deletion"
	KindTransitionIllegal Kind = "transition_illegal"
	KindInternal          Kind = "internal"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrBadInput          = errors.New("bad input")
	ErrReference         = errors.New("invalid reference")
	ErrBlockedDeletion   = errors.New("deletion blocked")
	ErrTransitionIllegal = errors.New("transition not allowed")
	ErrInternal          = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindConflict:          ErrConflict,
	KindBadInput:          ErrBadInput,
	KindReference:         ErrReference,
	KindBlockedDeletion:   ErrBlockedDeletion,
	KindTransitionIllegal: ErrTransitionIllegal,
	KindInternal:          ErrInternal,
}

// User-facing messages for storage constraint violations.
const (
	msgDuplicateTransition  = "A transition between these steps already exists"
	msgInvalidTransitionRef = "Invalid step or workflow ID"
	msgInvalidStepRef       = "Invalid status or workflow ID"
	msgDuplicateStepStatus  = "This status is already used by another step of the workflow"
	msgDuplicateStepOrder   = "Another step of the workflow already uses this step order"
	msgDuplicateInitialStep = "The workflow already has an initial step"
)

// Error is the typed error returned by every service operation.
type Error struct {
	Kind    Kind   // Error classification
	Op      string // Operation name
	Message string // Human-readable message, safe to show to end users
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

func notFoundError(op, message string, err error) *Error {
	return newError(KindNotFound, op, message, err)
}

func badInputError(op, message string) *Error {
	return newError(KindBadInput, op, message, nil)
}

func blockedDeletionError(op, message string) *Error {
	return newError(KindBlockedDeletion, op, message, nil)
}

func internalError(op string, err error) *Error {
	return newError(KindInternal, op, "", err)
}

// KindOf returns the kind of err, or KindInternal when err is not a service error.
func KindOf(err error) Kind {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}

	return KindInternal
}

// MessageOf returns the user-facing message carried by err, falling back to err.Error().
func MessageOf(err error) string {
	var serviceErr *Error
	if errors.As(err, &serviceErr) && serviceErr.Message != "" {
		return serviceErr.Message
	}

	return err.Error()
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsBadInput(err error) bool {
	return errors.Is(err, ErrBadInput)
}

func IsReference(err error) bool {
	return errors.Is(err, ErrReference)
}

func IsBlockedDeletion(err error) bool {
	return errors.Is(err, ErrBlockedDeletion)
}

func IsTransitionIllegal(err error) bool {
	return errors.Is(err, ErrTransitionIllegal)
}

func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// fromPersistence maps a storage error to a service error. refMessage is used for
// foreign key failures, whose meaning depends on the entity being written.
func fromPersistence(op string, err error, refMessage string) *Error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	switch {
	case errors.Is(err, persistence.ErrStatusNotFound):
		return notFoundError(op, "Status not found", err)
	case errors.Is(err, persistence.ErrWorkflowNotFound):
		return notFoundError(op, "Workflow not found", err)
	case errors.Is(err, persistence.ErrStepNotFound):
		return notFoundError(op, "Workflow step not found", err)
	case errors.Is(err, persistence.ErrTransitionNotFound):
		return notFoundError(op, "Workflow transition not found", err)
	case errors.Is(err, persistence.ErrProjectTypeNotFound):
		return notFoundError(op, "Project type not found", err)
	case errors.Is(err, persistence.ErrDuplicateTransition):
		return newError(KindConflict, op, msgDuplicateTransition, err)
	case errors.Is(err, persistence.ErrDuplicateStepStatus):
		return newError(KindConflict, op, msgDuplicateStepStatus, err)
	case errors.Is(err, persistence.ErrDuplicateStepOrder):
		return newError(KindConflict, op, msgDuplicateStepOrder, err)
	case errors.Is(err, persistence.ErrDuplicateInitialStep):
		return newError(KindConflict, op, msgDuplicateInitialStep, err)
	case errors.Is(err, persistence.ErrInvalidReference):
		return newError(KindReference, op, refMessage, err)
	case errors.Is(err, persistence.ErrReferenced):
		return newError(KindBlockedDeletion, op, "The record is still referenced and cannot be deleted", err)
	default:
		return internalError(op, err)
	}
}
