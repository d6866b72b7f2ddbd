package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pipecd-crm/wfm/pkg/events"
	"github.com/pipecd-crm/wfm/pkg/metrics"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// CreateWorkflowRequest represents the request to create a workflow.
type CreateWorkflowRequest struct {
	Name        string
	Description string
	UserID      string
}

// UpdateWorkflowRequest holds the workflow fields to change. Nil fields are left untouched.
type UpdateWorkflowRequest struct {
	Name        *string
	Description *string
	UserID      string
}

// Engine owns workflow definitions and answers transition legality questions.
type Engine struct {
	base

	steps       *StepStore
	transitions *TransitionStore
}

// NewEngine creates the workflow engine together with its step and transition stores.
func NewEngine(p persistence.Persistence, opts ...Option) *Engine {
	b := newBase(p, opts)

	return &Engine{
		base:        b,
		steps:       &StepStore{base: b},
		transitions: &TransitionStore{base: b},
	}
}

func (e *Engine) Steps() *StepStore {
	return e.steps
}

func (e *Engine) Transitions() *TransitionStore {
	return e.transitions
}

// HealthCheck checks the health of the persistence layer.
func (e *Engine) HealthCheck(ctx context.Context) (string, bool) {
	if e.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := e.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (e *Engine) List(ctx context.Context, includeArchived bool) ([]*models.Workflow, error) {
	workflows, err := e.persistence.WorkflowRepository().List(ctx, includeArchived)
	if err != nil {
		return nil, e.fail(ctx, "ListWorkflows", err, "")
	}

	return workflows, nil
}

// GetByID returns the workflow with its ordered steps and its transitions.
func (e *Engine) GetByID(ctx context.Context, workflowID string) (*models.WorkflowDetail, error) {
	const op = "GetWorkflow"

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	steps, err := e.persistence.StepRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	transitions, err := e.persistence.TransitionRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	return &models.WorkflowDetail{
		Workflow:    workflow,
		Steps:       steps,
		Transitions: transitions,
	}, nil
}

func (e *Engine) Create(ctx context.Context, req CreateWorkflowRequest) (*models.Workflow, error) {
	const op = "CreateWorkflow"

	ctx, span := e.startSpan(ctx, "workflow.create")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, badInputError(op, "Workflow name is required")
	}

	workflow := &models.Workflow{
		Name:            name,
		Description:     req.Description,
		CreatedByUserID: req.UserID,
		UpdatedByUserID: req.UserID,
	}

	err := e.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, workflow.ID))
	e.publish(ctx, workflow.ID, events.NewWorkflowChanged(events.WorkflowCreatedEvent, workflow.ID, workflow))

	return workflow, nil
}

func (e *Engine) Update(ctx context.Context, workflowID string, req UpdateWorkflowRequest) (*models.Workflow, error) {
	const op = "UpdateWorkflow"

	ctx, span := e.startSpan(ctx, "workflow.update", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	var name string
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, badInputError(op, "Workflow name cannot be empty")
		}
	}

	workflow, err := e.mutateWorkflow(ctx, op, workflowID, func(workflow *models.Workflow) {
		if req.Name != nil {
			workflow.Name = name
		}

		if req.Description != nil {
			workflow.Description = *req.Description
		}

		workflow.UpdatedByUserID = req.UserID
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, workflowID, events.NewWorkflowChanged(events.WorkflowUpdatedEvent, workflowID, workflow))

	return workflow, nil
}

// Archive hides a workflow from default listings. Its steps and transitions are kept.
func (e *Engine) Archive(ctx context.Context, workflowID, userID string) (*models.Workflow, error) {
	const op = "ArchiveWorkflow"

	ctx, span := e.startSpan(ctx, "workflow.archive", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	workflow, err := e.mutateWorkflow(ctx, op, workflowID, func(workflow *models.Workflow) {
		workflow.IsArchived = true
		workflow.UpdatedByUserID = userID
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, workflowID, events.NewWorkflowChanged(events.WorkflowArchivedEvent, workflowID, workflow))

	return workflow, nil
}

func (e *Engine) mutateWorkflow(ctx context.Context, op, workflowID string, mutate func(*models.Workflow)) (*models.Workflow, error) {
	var workflow *models.Workflow

	err := e.withWorkflowLock(ctx, op, workflowID, func() error {
		current, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
		if err != nil {
			return err
		}

		mutate(current)

		err = e.persistence.WorkflowRepository().Save(ctx, current)
		if err != nil {
			return err
		}

		workflow = current

		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	return workflow, nil
}

// Delete removes a workflow with its steps and transitions. It is refused while a
// project type uses the workflow as its default.
func (e *Engine) Delete(ctx context.Context, workflowID string) (*RemoveResult, error) {
	const op = "DeleteWorkflow"

	ctx, span := e.startSpan(ctx, "workflow.delete", attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	err := e.withWorkflowLock(ctx, op, workflowID, func() error {
		return e.persistence.WithTx(ctx, func(tx persistence.Repositories) error {
			_, err := tx.WorkflowRepository().GetByID(ctx, workflowID)
			if err != nil {
				return err
			}

			projectTypes, err := tx.ProjectTypeRepository().GetByDefaultWorkflow(ctx, workflowID)
			if err != nil {
				return err
			}

			if len(projectTypes) > 0 {
				names := make([]string, 0, len(projectTypes))
				for _, projectType := range projectTypes {
					names = append(names, projectType.Name)
				}

				return blockedDeletionError(op, fmt.Sprintf(
					"Cannot delete workflow: it is the default workflow of project types: %s.", strings.Join(names, ", ")))
			}

			return tx.WorkflowRepository().Delete(ctx, workflowID)
		})
	})
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	e.publish(ctx, workflowID, events.NewWorkflowChanged(events.WorkflowDeletedEvent, workflowID, nil))

	return &RemoveResult{Success: true, Message: "Workflow deleted"}, nil
}

// GetAllowedTransitions returns every outgoing edge of fromStepID.
func (e *Engine) GetAllowedTransitions(ctx context.Context, workflowID, fromStepID string) ([]*models.WorkflowTransition, error) {
	return e.transitions.GetAllowedTransitions(ctx, workflowID, fromStepID)
}

// GetInitialStep returns the step new project instances start at.
func (e *Engine) GetInitialStep(ctx context.Context, workflowID string) (*models.WorkflowStep, error) {
	const op = "GetInitialStep"

	_, err := e.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	steps, err := e.persistence.StepRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, e.fail(ctx, op, err, "")
	}

	for _, step := range steps {
		if step.IsInitialStep {
			return step, nil
		}
	}

	return nil, badInputError(op, "The workflow has no initial step")
}

// ValidateTransition returns nil when the edge currentStepID -> targetStepID exists in
// workflowID. Otherwise the error message names the legal next steps and can be shown
// to end users as is.
func (e *Engine) ValidateTransition(ctx context.Context, workflowID, currentStepID, targetStepID string) error {
	const op = "ValidateTransition"

	ctx, span := e.startSpan(ctx, "workflow.validate_transition",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.FromStepIDKey, currentStepID),
		attribute.String(otelhelper.ToStepIDKey, targetStepID))
	defer span.End()

	err := e.validateTransition(ctx, op, workflowID, currentStepID, targetStepID)
	span.SetAttributes(attribute.Bool(otelhelper.TransitionAllowed, err == nil))

	switch {
	case err == nil:
		e.metrics.TransitionValidated(metrics.OutcomeAllowed)

		return nil
	case IsTransitionIllegal(err):
		e.metrics.TransitionValidated(metrics.OutcomeRejected)
	default:
		e.metrics.TransitionValidated(metrics.OutcomeError)
	}

	return e.fail(ctx, op, err, "")
}

func (e *Engine) validateTransition(ctx context.Context, op, workflowID, currentStepID, targetStepID string) error {
	current, err := e.stepForValidation(ctx, op, currentStepID)
	if err != nil {
		return err
	}

	target, err := e.stepForValidation(ctx, op, targetStepID)
	if err != nil {
		return err
	}

	for _, step := range []*models.WorkflowStep{current, target} {
		if step.WorkflowID != workflowID {
			return badInputError(op, fmt.Sprintf("Step %s does not belong to workflow %s", step.ID, workflowID))
		}
	}

	_, err = e.persistence.TransitionRepository().Find(ctx, workflowID, currentStepID, targetStepID)
	if err == nil {
		return nil
	}

	if !errors.Is(err, persistence.ErrTransitionNotFound) {
		return err
	}

	currentName := e.stepName(ctx, current)
	targetName := e.stepName(ctx, target)

	outgoing, err := e.persistence.TransitionRepository().GetOutgoing(ctx, workflowID, currentStepID)
	if err != nil {
		return err
	}

	if len(outgoing) == 0 {
		return newError(KindTransitionIllegal, op,
			fmt.Sprintf("There are no defined transitions from '%s'.", currentName), nil)
	}

	allowed := make([]string, 0, len(outgoing))
	for _, transition := range outgoing {
		allowed = append(allowed, e.stepNameByID(ctx, transition.ToStepID))
	}

	return newError(KindTransitionIllegal, op, fmt.Sprintf(
		"Transition from '%s' to '%s' is not allowed. Allowed next steps from '%s' are: %s.",
		currentName, targetName, currentName, strings.Join(allowed, ", ")), nil)
}

func (e *Engine) stepForValidation(ctx context.Context, op, stepID string) (*models.WorkflowStep, error) {
	step, err := e.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		if errors.Is(err, persistence.ErrStepNotFound) {
			return nil, notFoundError(op, fmt.Sprintf("Workflow step %s not found", stepID), err)
		}

		return nil, err
	}

	return step, nil
}

// stepName resolves the status name of a step, falling back to the step ID.
func (e *Engine) stepName(ctx context.Context, step *models.WorkflowStep) string {
	status, err := e.persistence.StatusRepository().GetByID(ctx, step.StatusID)
	if err != nil {
		e.logger.DebugContext(ctx, "status lookup failed", "step_id", step.ID, "status_id", step.StatusID, "error", err)

		return step.ID
	}

	return status.Name
}

func (e *Engine) stepNameByID(ctx context.Context, stepID string) string {
	step, err := e.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		e.logger.DebugContext(ctx, "step lookup failed", "step_id", stepID, "error", err)

		return stepID
	}

	return e.stepName(ctx, step)
}

// StartProject returns a reference placing a new project at the workflow's initial step.
func (e *Engine) StartProject(ctx context.Context, projectID, workflowID string) (*models.ProjectRef, error) {
	initial, err := e.GetInitialStep(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return &models.ProjectRef{
		ID:            projectID,
		WorkflowID:    workflowID,
		CurrentStepID: initial.ID,
	}, nil
}

// AdvanceProject validates moving a project to targetStepID and returns the moved
// reference. Persisting it is up to the caller.
func (e *Engine) AdvanceProject(ctx context.Context, ref models.ProjectRef, targetStepID string) (*models.ProjectRef, error) {
	ctx, span := e.startSpan(ctx, "workflow.advance_project", attribute.String(otelhelper.ProjectIDKey, ref.ID))
	defer span.End()

	if ref.WorkflowID == "" || ref.CurrentStepID == "" {
		return nil, badInputError("AdvanceProject", "Project has no workflow or current step")
	}

	err := e.ValidateTransition(ctx, ref.WorkflowID, ref.CurrentStepID, targetStepID)
	if err != nil {
		return nil, err
	}

	ref.CurrentStepID = targetStepID

	return &ref, nil
}
