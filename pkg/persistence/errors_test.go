package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("not found sentinels are classified", func(t *testing.T) {
		for _, err := range []error{
			persistence.ErrStatusNotFound,
			persistence.ErrWorkflowNotFound,
			persistence.ErrStepNotFound,
			persistence.ErrTransitionNotFound,
			persistence.ErrProjectTypeNotFound,
		} {
			assert.True(t, persistence.IsNotFound(fmt.Errorf("wrapped: %w", err)), err.Error())
			assert.False(t, persistence.IsUniqueViolation(err), err.Error())
		}
	})

	t.Run("unique violations are classified", func(t *testing.T) {
		for _, err := range []error{
			persistence.ErrDuplicateStepStatus,
			persistence.ErrDuplicateStepOrder,
			persistence.ErrDuplicateInitialStep,
			persistence.ErrDuplicateTransition,
		} {
			assert.True(t, persistence.IsUniqueViolation(err), err.Error())
			assert.False(t, persistence.IsNotFound(err), err.Error())
		}

		assert.False(t, persistence.IsUniqueViolation(persistence.ErrInvalidReference))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewEntityError("DeleteStep", "step", "step-123", persistence.ErrStepNotFound)

		assert.Contains(t, err.Error(), "DeleteStep")
		assert.Contains(t, err.Error(), "step-123")
		assert.Contains(t, err.Error(), "workflow step not found")
		assert.True(t, errors.Is(err, persistence.ErrStepNotFound))
	})

	t.Run("entity error without id", func(t *testing.T) {
		err := persistence.NewEntityError("CreateTransition", "transition", "", persistence.ErrDuplicateTransition)

		assert.Equal(t, "CreateTransition operation failed for transition: transition already exists", err.Error())
	})
}
