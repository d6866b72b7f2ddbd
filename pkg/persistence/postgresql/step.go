package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
)

const stepColumns = `id, workflow_id, status_id, step_order, is_initial_step, is_final_step, metadata, created_at, updated_at`

// StepRepository handles workflow step database operations.
type StepRepository struct {
	db     querier
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db querier, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

// GetByWorkflow returns a workflow's steps sorted by step order.
func (r *StepRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// GetByID returns a step or persistence.ErrStepNotFound.
func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM workflow_steps WHERE id = $1`

	step, err := r.scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetStep", "step", id, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	return step, nil
}

// Create inserts a new step. The step order is stored as given.
func (r *StepRepository) Create(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	now := time.Now().UTC()
	step.CreatedAt = now
	step.UpdatedAt = now

	metadataJSON, err := marshalMetadata(step.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_steps (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.WorkflowID,
		step.StatusID,
		step.StepOrder,
		step.IsInitialStep,
		step.IsFinalStep,
		metadataJSON,
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("CreateStep", "step", step.ID, mapWriteError(err))
	}

	return nil
}

// Update writes every mutable column of an existing step.
func (r *StepRepository) Update(ctx context.Context, step *models.WorkflowStep) error {
	step.UpdatedAt = time.Now().UTC()

	metadataJSON, err := marshalMetadata(step.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_steps SET
			status_id = $2,
			step_order = $3,
			is_initial_step = $4,
			is_final_step = $5,
			metadata = $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.StatusID,
		step.StepOrder,
		step.IsInitialStep,
		step.IsFinalStep,
		metadataJSON,
		step.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("UpdateStep", "step", step.ID, mapWriteError(err))
	}

	return r.expectOne(result, "UpdateStep", step.ID)
}

// UpdateOrder sets a single step's order value.
func (r *StepRepository) UpdateOrder(ctx context.Context, stepID string, stepOrder int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_steps SET step_order = $2, updated_at = NOW() WHERE id = $1`,
		stepID, stepOrder,
	)
	if err != nil {
		return persistence.NewEntityError("UpdateStepOrder", "step", stepID, mapWriteError(err))
	}

	return r.expectOne(result, "UpdateStepOrder", stepID)
}

// Delete removes a step. Transitions still pointing at it make this fail with ErrReferenced.
func (r *StepRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_steps WHERE id = $1`, id)
	if err != nil {
		return persistence.NewEntityError("DeleteStep", "step", id, mapDeleteError(err))
	}

	return r.expectOne(result, "DeleteStep", id)
}

// UnsettledWorkflows lists workflows holding a non-positive step order.
func (r *StepRepository) UnsettledWorkflows(ctx context.Context) ([]string, error) {
	query := `
		SELECT workflow_id
		FROM workflow_steps
		GROUP BY workflow_id
		HAVING MIN(step_order) < 1
		ORDER BY workflow_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating unsettled workflows: %w", err)
	}

	return ids, nil
}

func (r *StepRepository) expectOne(result sql.Result, op, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError(op, "step", id, persistence.ErrStepNotFound)
	}

	return nil
}

func (r *StepRepository) scanStep(row scanner) (*models.WorkflowStep, error) {
	var (
		step         models.WorkflowStep
		metadataJSON []byte
	)

	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StatusID,
		&step.StepOrder,
		&step.IsInitialStep,
		&step.IsFinalStep,
		&metadataJSON,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		err := json.Unmarshal(metadataJSON, &step.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step metadata: %w", err)
		}
	}

	return &step, nil
}

// marshalMetadata returns an untyped nil for a nil map so the column stores SQL NULL.
func marshalMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step metadata: %w", err)
	}

	return string(data), nil
}
