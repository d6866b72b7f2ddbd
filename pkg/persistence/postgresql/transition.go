package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
)

const transitionColumns = `id, workflow_id, from_step_id, to_step_id, name, created_at, updated_at`

// TransitionRepository handles workflow transition database operations.
type TransitionRepository struct {
	db     querier
	logger *slog.Logger
}

// NewTransitionRepository creates a new transition repository.
func NewTransitionRepository(db querier, logger *slog.Logger) *TransitionRepository {
	return &TransitionRepository{db: db, logger: logger}
}

// GetByWorkflow returns every transition of a workflow.
func (r *TransitionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTransition, error) {
	return r.query(ctx, `SELECT `+transitionColumns+`
		FROM workflow_transitions
		WHERE workflow_id = $1
		ORDER BY created_at, id
	`, workflowID)
}

// GetByID returns a transition or persistence.ErrTransitionNotFound.
func (r *TransitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + ` FROM workflow_transitions WHERE id = $1`

	transition, err := r.scanTransition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetTransition", "transition", id, persistence.ErrTransitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}

	return transition, nil
}

// Find returns the edge from -> to in a workflow.
func (r *TransitionRepository) Find(ctx context.Context, workflowID, fromStepID, toStepID string) (*models.WorkflowTransition, error) {
	query := `SELECT ` + transitionColumns + `
		FROM workflow_transitions
		WHERE workflow_id = $1 AND from_step_id = $2 AND to_step_id = $3
	`

	transition, err := r.scanTransition(r.db.QueryRowContext(ctx, query, workflowID, fromStepID, toStepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("FindTransition", "transition", "", persistence.ErrTransitionNotFound)
		}

		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}

	return transition, nil
}

// GetOutgoing returns every edge leaving fromStepID.
func (r *TransitionRepository) GetOutgoing(ctx context.Context, workflowID, fromStepID string) ([]*models.WorkflowTransition, error) {
	return r.query(ctx, `SELECT `+transitionColumns+`
		FROM workflow_transitions
		WHERE workflow_id = $1 AND from_step_id = $2
		ORDER BY created_at, id
	`, workflowID, fromStepID)
}

// GetByStep returns every edge touching stepID on either end.
func (r *TransitionRepository) GetByStep(ctx context.Context, stepID string) ([]*models.WorkflowTransition, error) {
	return r.query(ctx, `SELECT `+transitionColumns+`
		FROM workflow_transitions
		WHERE from_step_id = $1 OR to_step_id = $1
		ORDER BY created_at, id
	`, stepID)
}

// Create inserts a new transition.
func (r *TransitionRepository) Create(ctx context.Context, transition *models.WorkflowTransition) error {
	if transition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate transition ID: %w", err)
		}

		transition.ID = id.String()
	}

	now := time.Now().UTC()
	transition.CreatedAt = now
	transition.UpdatedAt = now

	query := `
		INSERT INTO workflow_transitions (` + transitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		transition.ID,
		transition.WorkflowID,
		transition.FromStepID,
		transition.ToStepID,
		transition.Name,
		transition.CreatedAt,
		transition.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("CreateTransition", "transition", transition.ID, mapWriteError(err))
	}

	return nil
}

// Update writes the mutable columns of a transition.
func (r *TransitionRepository) Update(ctx context.Context, transition *models.WorkflowTransition) error {
	transition.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_transitions SET name = $2, updated_at = $3 WHERE id = $1`,
		transition.ID, transition.Name, transition.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("UpdateTransition", "transition", transition.ID, mapWriteError(err))
	}

	return r.expectOne(result, "UpdateTransition", transition.ID)
}

// Delete removes a transition.
func (r *TransitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_transitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transition: %w", err)
	}

	return r.expectOne(result, "DeleteTransition", id)
}

func (r *TransitionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowTransition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow transitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	transitions := make([]*models.WorkflowTransition, 0)

	for rows.Next() {
		transition, err := r.scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}

		transitions = append(transitions, transition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}

	return transitions, nil
}

func (r *TransitionRepository) expectOne(result sql.Result, op, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError(op, "transition", id, persistence.ErrTransitionNotFound)
	}

	return nil
}

func (r *TransitionRepository) scanTransition(row scanner) (*models.WorkflowTransition, error) {
	var transition models.WorkflowTransition

	err := row.Scan(
		&transition.ID,
		&transition.WorkflowID,
		&transition.FromStepID,
		&transition.ToStepID,
		&transition.Name,
		&transition.CreatedAt,
		&transition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &transition, nil
}
