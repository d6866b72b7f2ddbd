package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pipecd-crm/wfm/pkg/events"
	"github.com/pipecd-crm/wfm/pkg/metrics"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// AddStepRequest represents the request to bind a status into a workflow.
type AddStepRequest struct {
	StatusID      string
	StepOrder     int
	IsInitialStep bool
	IsFinalStep   bool
	Metadata      map[string]any
}

// UpdateStepRequest holds the step fields to change. Nil fields and an absent
// Metadata are left untouched; a present null Metadata clears it.
type UpdateStepRequest struct {
	StatusID      *string
	StepOrder     *int
	IsInitialStep *bool
	IsFinalStep   *bool
	Metadata      models.NullableMetadata
}

// RemoveResult reports the outcome of a guarded deletion.
type RemoveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StepStore manages the ordered steps of workflows.
type StepStore struct {
	base
}

// NewStepStore creates a new step store service.
func NewStepStore(p persistence.Persistence, opts ...Option) *StepStore {
	return &StepStore{base: newBase(p, opts)}
}

// GetByWorkflow returns the steps of a workflow sorted by step order.
func (s *StepStore) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	steps, err := s.persistence.StepRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, s.fail(ctx, "GetSteps", err, "")
	}

	return steps, nil
}

func (s *StepStore) GetByID(ctx context.Context, stepID string) (*models.WorkflowStep, error) {
	step, err := s.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		return nil, s.fail(ctx, "GetStep", err, "")
	}

	return step, nil
}

// AddStep inserts a step at the caller supplied order. Existing steps are not renumbered.
func (s *StepStore) AddStep(ctx context.Context, workflowID string, req AddStepRequest) (*models.WorkflowStep, error) {
	const op = "AddStep"

	ctx, span := s.startSpan(ctx, "step.add", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	if req.StatusID == "" {
		return nil, badInputError(op, "Status ID is required")
	}

	if req.StepOrder <= 0 {
		return nil, badInputError(op, "Step order must be a positive integer")
	}

	err := s.metadata.Validate(req.Metadata)
	if err != nil {
		return nil, newError(KindBadInput, op, err.Error(), err)
	}

	step := &models.WorkflowStep{
		WorkflowID:    workflowID,
		StatusID:      req.StatusID,
		StepOrder:     req.StepOrder,
		IsInitialStep: req.IsInitialStep,
		IsFinalStep:   req.IsFinalStep,
		Metadata:      req.Metadata,
	}

	err = s.withWorkflowLock(ctx, op, workflowID, func() error {
		_, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
		if err != nil {
			return err
		}

		return s.persistence.StepRepository().Create(ctx, step)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, msgInvalidStepRef)
	}

	span.SetAttributes(attribute.String(otelhelper.StepIDKey, step.ID))
	s.publish(ctx, workflowID, events.NewStepChanged(events.StepAddedEvent, workflowID, step.ID, step))

	return step, nil
}

// UpdateStep mutates only the supplied fields of a step.
func (s *StepStore) UpdateStep(ctx context.Context, stepID string, req UpdateStepRequest) (*models.WorkflowStep, error) {
	const op = "UpdateStep"

	ctx, span := s.startSpan(ctx, "step.update", attribute.String(otelhelper.StepIDKey, stepID))
	defer span.End()

	if req.StepOrder != nil && *req.StepOrder <= 0 {
		return nil, badInputError(op, "Step order must be a positive integer")
	}

	if req.StatusID != nil && *req.StatusID == "" {
		return nil, badInputError(op, "Status ID cannot be empty")
	}

	if req.Metadata.Present && !req.Metadata.IsNull() {
		err := s.metadata.Validate(req.Metadata.Value)
		if err != nil {
			return nil, newError(KindBadInput, op, err.Error(), err)
		}
	}

	current, err := s.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	var updated *models.WorkflowStep

	err = s.withWorkflowLock(ctx, op, current.WorkflowID, func() error {
		// The workflow may have been deleted since the step was read.
		_, err := s.persistence.WorkflowRepository().GetByID(ctx, current.WorkflowID)
		if err != nil {
			return err
		}

		step, err := s.persistence.StepRepository().GetByID(ctx, stepID)
		if err != nil {
			return err
		}

		if req.StatusID != nil {
			step.StatusID = *req.StatusID
		}

		if req.StepOrder != nil {
			step.StepOrder = *req.StepOrder
		}

		if req.IsInitialStep != nil {
			step.IsInitialStep = *req.IsInitialStep
		}

		if req.IsFinalStep != nil {
			step.IsFinalStep = *req.IsFinalStep
		}

		if req.Metadata.Present {
			step.Metadata = req.Metadata.Value
		}

		err = s.persistence.StepRepository().Update(ctx, step)
		if err != nil {
			return err
		}

		updated = step

		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, msgInvalidStepRef)
	}

	s.publish(ctx, updated.WorkflowID, events.NewStepChanged(events.StepUpdatedEvent, updated.WorkflowID, updated.ID, updated))

	return updated, nil
}

// RemoveStep deletes a step unless a transition still starts or ends at it.
func (s *StepStore) RemoveStep(ctx context.Context, stepID string) (*RemoveResult, error) {
	const op = "RemoveStep"

	ctx, span := s.startSpan(ctx, "step.remove", attribute.String(otelhelper.StepIDKey, stepID))
	defer span.End()

	step, err := s.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	err = s.withWorkflowLock(ctx, op, step.WorkflowID, func() error {
		return s.persistence.WithTx(ctx, func(tx persistence.Repositories) error {
			blocking, err := tx.TransitionRepository().GetByStep(ctx, stepID)
			if err != nil {
				return err
			}

			if len(blocking) > 0 {
				return blockedDeletionError(op, blockedStepMessage(blocking))
			}

			return tx.StepRepository().Delete(ctx, stepID)
		})
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	s.publish(ctx, step.WorkflowID, events.NewStepChanged(events.StepRemovedEvent, step.WorkflowID, stepID, nil))

	return &RemoveResult{Success: true, Message: "Workflow step deleted"}, nil
}

func blockedStepMessage(blocking []*models.WorkflowTransition) string {
	names := make([]string, 0, len(blocking))
	for _, transition := range blocking {
		names = append(names, transition.DisplayName())
	}

	return fmt.Sprintf("Cannot delete step: it is used by transitions: %s. Remove those transitions first.",
		strings.Join(names, ", "))
}

// ReorderSteps assigns step orders 1..n following orderedStepIDs, which must list
// every step of the workflow exactly once.
func (s *StepStore) ReorderSteps(ctx context.Context, workflowID string, orderedStepIDs []string) ([]*models.WorkflowStep, error) {
	const op = "ReorderSteps"

	ctx, span := s.startSpan(ctx, "step.reorder",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.StepCountKey, len(orderedStepIDs)))
	defer span.End()

	var (
		reordered []*models.WorkflowStep
		took      time.Duration
	)

	err := s.withWorkflowLock(ctx, op, workflowID, func() error {
		start := time.Now()
		defer func() { took = time.Since(start) }()

		return s.persistence.WithTx(ctx, func(tx persistence.Repositories) error {
			_, err := tx.WorkflowRepository().GetByID(ctx, workflowID)
			if err != nil {
				return err
			}

			steps, err := tx.StepRepository().GetByWorkflow(ctx, workflowID)
			if err != nil {
				return err
			}

			err = checkPermutation(op, steps, orderedStepIDs)
			if err != nil {
				return err
			}

			err = applyOrder(ctx, tx.StepRepository(), orderedStepIDs)
			if err != nil {
				return err
			}

			reordered, err = tx.StepRepository().GetByWorkflow(ctx, workflowID)

			return err
		})
	})
	if err != nil {
		s.metrics.Reordered(metrics.OutcomeError, took)

		return nil, s.fail(ctx, op, err, msgInvalidStepRef)
	}

	s.metrics.Reordered(metrics.OutcomeSuccess, took)
	s.publish(ctx, workflowID, events.NewStepsReordered(workflowID, orderedStepIDs))

	return reordered, nil
}

// RepairStepOrder renumbers a workflow whose orders are not exactly 1..n, such as
// after an interrupted reorder. Steps holding temporary negative orders come first,
// by absolute value, followed by the remaining steps in ascending order.
func (s *StepStore) RepairStepOrder(ctx context.Context, workflowID string) ([]*models.WorkflowStep, bool, error) {
	const op = "RepairStepOrder"

	ctx, span := s.startSpan(ctx, "step.repair", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	var (
		repaired []*models.WorkflowStep
		changed  bool
	)

	err := s.withWorkflowLock(ctx, op, workflowID, func() error {
		return s.persistence.WithTx(ctx, func(tx persistence.Repositories) error {
			steps, err := tx.StepRepository().GetByWorkflow(ctx, workflowID)
			if err != nil {
				return err
			}

			if isDense(steps) {
				repaired = steps

				return nil
			}

			slices.SortStableFunc(steps, func(a, b *models.WorkflowStep) int {
				return compareRepairOrder(a.StepOrder, b.StepOrder)
			})

			ids := make([]string, 0, len(steps))
			for _, step := range steps {
				ids = append(ids, step.ID)
			}

			err = applyOrder(ctx, tx.StepRepository(), ids)
			if err != nil {
				return err
			}

			changed = true
			repaired, err = tx.StepRepository().GetByWorkflow(ctx, workflowID)

			return err
		})
	})
	if err != nil {
		s.metrics.Repaired(metrics.OutcomeError)

		return nil, false, s.fail(ctx, op, err, "")
	}

	if changed {
		s.metrics.Repaired(metrics.OutcomeSuccess)
		s.logger.InfoContext(ctx, "repaired step order", "workflow_id", workflowID, "steps", len(repaired))

		ids := make([]string, 0, len(repaired))
		for _, step := range repaired {
			ids = append(ids, step.ID)
		}

		s.publish(ctx, workflowID, events.NewStepsReordered(workflowID, ids))
	}

	return repaired, changed, nil
}

// UnsettledWorkflows lists the workflows left with temporary negative orders.
func (s *StepStore) UnsettledWorkflows(ctx context.Context) ([]string, error) {
	ids, err := s.persistence.StepRepository().UnsettledWorkflows(ctx)
	if err != nil {
		return nil, s.fail(ctx, "UnsettledWorkflows", err, "")
	}

	return ids, nil
}

// applyOrder writes the two reorder phases: first every step gets the temporary
// order -(i+1), then the final order i+1. No write can collide with an order still
// held by another step of the set.
func applyOrder(ctx context.Context, repo persistence.StepRepository, orderedStepIDs []string) error {
	for i, id := range orderedStepIDs {
		err := repo.UpdateOrder(ctx, id, -(i + 1))
		if err != nil {
			return fmt.Errorf("failed to set temporary order: %w", err)
		}
	}

	for i, id := range orderedStepIDs {
		err := repo.UpdateOrder(ctx, id, i+1)
		if err != nil {
			return fmt.Errorf("failed to set final order: %w", err)
		}
	}

	return nil
}

func checkPermutation(op string, steps []*models.WorkflowStep, orderedStepIDs []string) error {
	known := make(map[string]bool, len(steps))
	for _, step := range steps {
		known[step.ID] = false
	}

	for _, id := range orderedStepIDs {
		seen, ok := known[id]
		if !ok {
			return badInputError(op, fmt.Sprintf("Step %s does not belong to the workflow", id))
		}

		if seen {
			return badInputError(op, fmt.Sprintf("Step %s is listed more than once", id))
		}

		known[id] = true
	}

	if len(orderedStepIDs) != len(steps) {
		return badInputError(op, fmt.Sprintf("Expected %d step IDs, got %d", len(steps), len(orderedStepIDs)))
	}

	return nil
}

// isDense reports whether steps, sorted by order, hold exactly 1..n.
func isDense(steps []*models.WorkflowStep) bool {
	for i, step := range steps {
		if step.StepOrder != i+1 {
			return false
		}
	}

	return true
}

func compareRepairOrder(a, b int) int {
	switch {
	case a < 0 && b < 0:
		return cmp.Compare(-a, -b)
	case a < 0:
		return -1
	case b < 0:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}
