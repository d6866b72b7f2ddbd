package postgresql

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pipecd-crm/wfm/pkg/persistence"
)

const (
	uniqueViolation     pq.ErrorCode = "23505"
	foreignKeyViolation pq.ErrorCode = "23503"
)

var uniqueConstraints = map[string]error{
	"workflow_steps_workflow_status_key": persistence.ErrDuplicateStepStatus,
	"workflow_steps_workflow_order_key":  persistence.ErrDuplicateStepOrder,
	"workflow_steps_single_initial_idx":  persistence.ErrDuplicateInitialStep,
	"workflow_transitions_edge_key":      persistence.ErrDuplicateTransition,
}

// mapWriteError translates constraint violations raised by inserts and updates into
// persistence sentinels. Other errors are returned unchanged.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case uniqueViolation:
		if sentinel, ok := uniqueConstraints[pqErr.Constraint]; ok {
			return fmt.Errorf("%w: %s", sentinel, pqErr.Message)
		}
	case foreignKeyViolation:
		return fmt.Errorf("%w: %s", persistence.ErrInvalidReference, pqErr.Message)
	}

	return err
}

// mapDeleteError translates a foreign key violation on delete into ErrReferenced.
func mapDeleteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", persistence.ErrReferenced, pqErr.Message)
	}

	return err
}
