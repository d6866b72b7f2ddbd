package services

import (
	"context"
	"strings"

	"github.com/pipecd-crm/wfm/pkg/events"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// AddTransitionRequest represents the request to connect two steps of a workflow.
type AddTransitionRequest struct {
	FromStepID string
	ToStepID   string
	Name       string
}

// UpdateTransitionRequest holds the transition fields to change.
type UpdateTransitionRequest struct {
	Name *string
}

// TransitionStore manages the directed edges between steps.
type TransitionStore struct {
	base
}

// NewTransitionStore creates a new transition store service.
func NewTransitionStore(p persistence.Persistence, opts ...Option) *TransitionStore {
	return &TransitionStore{base: newBase(p, opts)}
}

func (s *TransitionStore) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTransition, error) {
	transitions, err := s.persistence.TransitionRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, s.fail(ctx, "GetTransitions", err, "")
	}

	return transitions, nil
}

func (s *TransitionStore) GetByID(ctx context.Context, transitionID string) (*models.WorkflowTransition, error) {
	transition, err := s.persistence.TransitionRepository().GetByID(ctx, transitionID)
	if err != nil {
		return nil, s.fail(ctx, "GetTransition", err, "")
	}

	return transition, nil
}

// GetAllowedTransitions returns every outgoing edge of a step.
func (s *TransitionStore) GetAllowedTransitions(ctx context.Context, workflowID, fromStepID string) ([]*models.WorkflowTransition, error) {
	transitions, err := s.persistence.TransitionRepository().GetOutgoing(ctx, workflowID, fromStepID)
	if err != nil {
		return nil, s.fail(ctx, "GetAllowedTransitions", err, "")
	}

	return transitions, nil
}

// AddTransition creates the edge fromStepID -> toStepID. Both steps must belong to workflowID.
func (s *TransitionStore) AddTransition(ctx context.Context, workflowID string, req AddTransitionRequest) (*models.WorkflowTransition, error) {
	const op = "AddTransition"

	ctx, span := s.startSpan(ctx, "transition.add",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.FromStepIDKey, req.FromStepID),
		attribute.String(otelhelper.ToStepIDKey, req.ToStepID))
	defer span.End()

	if req.FromStepID == "" || req.ToStepID == "" {
		return nil, badInputError(op, "Both from and to step IDs are required")
	}

	if req.FromStepID == req.ToStepID {
		return nil, badInputError(op, "A transition cannot start and end at the same step")
	}

	transition := &models.WorkflowTransition{
		WorkflowID: workflowID,
		FromStepID: req.FromStepID,
		ToStepID:   req.ToStepID,
		Name:       strings.TrimSpace(req.Name),
	}

	err := s.withWorkflowLock(ctx, op, workflowID, func() error {
		return s.persistence.TransitionRepository().Create(ctx, transition)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, msgInvalidTransitionRef)
	}

	span.SetAttributes(attribute.String(otelhelper.TransitionIDKey, transition.ID))
	s.publish(ctx, workflowID, events.NewTransitionChanged(events.TransitionAddedEvent, workflowID, transition.ID, transition))

	return transition, nil
}

// UpdateTransition renames a transition. A request without fields is rejected.
func (s *TransitionStore) UpdateTransition(ctx context.Context, transitionID string, req UpdateTransitionRequest) (*models.WorkflowTransition, error) {
	const op = "UpdateTransition"

	ctx, span := s.startSpan(ctx, "transition.update", attribute.String(otelhelper.TransitionIDKey, transitionID))
	defer span.End()

	if req.Name == nil {
		return nil, badInputError(op, "No fields to update")
	}

	current, err := s.persistence.TransitionRepository().GetByID(ctx, transitionID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	var updated *models.WorkflowTransition

	err = s.withWorkflowLock(ctx, op, current.WorkflowID, func() error {
		transition, err := s.persistence.TransitionRepository().GetByID(ctx, transitionID)
		if err != nil {
			return err
		}

		transition.Name = strings.TrimSpace(*req.Name)

		err = s.persistence.TransitionRepository().Update(ctx, transition)
		if err != nil {
			return err
		}

		updated = transition

		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	s.publish(ctx, updated.WorkflowID, events.NewTransitionChanged(events.TransitionUpdatedEvent, updated.WorkflowID, updated.ID, updated))

	return updated, nil
}

// RemoveTransition deletes a transition unconditionally.
func (s *TransitionStore) RemoveTransition(ctx context.Context, transitionID string) (*RemoveResult, error) {
	const op = "RemoveTransition"

	ctx, span := s.startSpan(ctx, "transition.remove", attribute.String(otelhelper.TransitionIDKey, transitionID))
	defer span.End()

	current, err := s.persistence.TransitionRepository().GetByID(ctx, transitionID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	err = s.withWorkflowLock(ctx, op, current.WorkflowID, func() error {
		return s.persistence.TransitionRepository().Delete(ctx, transitionID)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "")
	}

	s.publish(ctx, current.WorkflowID, events.NewTransitionChanged(events.TransitionRemovedEvent, current.WorkflowID, transitionID, nil))

	return &RemoveResult{Success: true, Message: "Workflow transition deleted"}, nil
}
