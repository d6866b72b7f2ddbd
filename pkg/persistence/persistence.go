// Package persistence provides the storage abstraction for workflow definitions.
package persistence

import (
	"context"

	"github.com/pipecd-crm/wfm/pkg/models"
)

// Persistence is a transactional row store for the workflow engine.
type Persistence interface {
	Repositories

	// WithTx runs fn against repositories bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Repositories) error) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Repositories groups the per-entity repositories.
type Repositories interface {
	StatusRepository() StatusRepository
	WorkflowRepository() WorkflowRepository
	StepRepository() StepRepository
	TransitionRepository() TransitionRepository
	ProjectTypeRepository() ProjectTypeRepository
}

// StatusRepository stores the status catalog.
type StatusRepository interface {
	List(ctx context.Context, includeArchived bool) ([]*models.Status, error)
	GetByID(ctx context.Context, id string) (*models.Status, error)
	Save(ctx context.Context, status *models.Status) error
}

// WorkflowRepository stores workflow headers.
type WorkflowRepository interface {
	List(ctx context.Context, includeArchived bool) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	// Delete removes the workflow together with its steps and transitions.
	Delete(ctx context.Context, id string) error
}

// StepRepository stores workflow steps.
type StepRepository interface {
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowStep, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowStep, error)
	Create(ctx context.Context, step *models.WorkflowStep) error
	Update(ctx context.Context, step *models.WorkflowStep) error
	UpdateOrder(ctx context.Context, stepID string, stepOrder int) error
	Delete(ctx context.Context, id string) error
	// UnsettledWorkflows lists workflows holding a non-positive step order, the state
	// an interrupted reorder leaves behind. Gapped positive orders are not listed.
	UnsettledWorkflows(ctx context.Context) ([]string, error)
}

// TransitionRepository stores transitions between steps.
type TransitionRepository interface {
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTransition, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowTransition, error)
	// Find returns the edge (fromStepID, toStepID) in a workflow, or ErrTransitionNotFound.
	Find(ctx context.Context, workflowID, fromStepID, toStepID string) (*models.WorkflowTransition, error)
	GetOutgoing(ctx context.Context, workflowID, fromStepID string) ([]*models.WorkflowTransition, error)
	// GetByStep returns every transition where the step is either endpoint.
	GetByStep(ctx context.Context, stepID string) ([]*models.WorkflowTransition, error)
	Create(ctx context.Context, transition *models.WorkflowTransition) error
	Update(ctx context.Context, transition *models.WorkflowTransition) error
	Delete(ctx context.Context, id string) error
}

// ProjectTypeRepository stores project types.
type ProjectTypeRepository interface {
	List(ctx context.Context, includeArchived bool) ([]*models.ProjectType, error)
	GetByID(ctx context.Context, id string) (*models.ProjectType, error)
	GetByDefaultWorkflow(ctx context.Context, workflowID string) ([]*models.ProjectType, error)
	Save(ctx context.Context, projectType *models.ProjectType) error
}
