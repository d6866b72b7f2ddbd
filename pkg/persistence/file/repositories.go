package file

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
)

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}

// StatusRepository handles status catalog operations.
type StatusRepository struct {
	access access
}

func (r *StatusRepository) List(_ context.Context, includeArchived bool) ([]*models.Status, error) {
	statuses := make([]*models.Status, 0)

	err := r.access.read(func(s *state) error {
		for _, status := range s.Statuses {
			if includeArchived || !status.IsArchived {
				copied := *status
				statuses = append(statuses, &copied)
			}
		}

		return nil
	})

	slices.SortFunc(statuses, func(a, b *models.Status) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), a.CreatedAt.Compare(b.CreatedAt))
	})

	return statuses, err
}

func (r *StatusRepository) GetByID(_ context.Context, id string) (*models.Status, error) {
	var found *models.Status

	err := r.access.read(func(s *state) error {
		status, ok := s.Statuses[id]
		if !ok {
			return persistence.NewEntityError("GetStatus", "status", id, persistence.ErrStatusNotFound)
		}

		copied := *status
		found = &copied

		return nil
	})

	return found, err
}

func (r *StatusRepository) Save(_ context.Context, status *models.Status) error {
	if status.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		status.ID = id
	}

	now := time.Now().UTC()
	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}

	status.UpdatedAt = now

	return r.access.do(func(s *state) error {
		owned := ownStatus(status)
		s.Statuses[owned.ID] = owned

		return nil
	})
}

// WorkflowRepository handles workflow header operations.
type WorkflowRepository struct {
	access access
}

func (r *WorkflowRepository) List(_ context.Context, includeArchived bool) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	err := r.access.read(func(s *state) error {
		for _, workflow := range s.Workflows {
			if includeArchived || !workflow.IsArchived {
				copied := *workflow
				workflows = append(workflows, &copied)
			}
		}

		return nil
	})

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return workflows, err
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var found *models.Workflow

	err := r.access.read(func(s *state) error {
		workflow, ok := s.Workflows[id]
		if !ok {
			return persistence.NewEntityError("GetWorkflow", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		copied := *workflow
		found = &copied

		return nil
	})

	return found, err
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		workflow.ID = id
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return r.access.do(func(s *state) error {
		owned := ownWorkflow(workflow)
		if existing, ok := s.Workflows[owned.ID]; ok {
			owned.CreatedAt = existing.CreatedAt
			owned.CreatedByUserID = existing.CreatedByUserID
		}

		s.Workflows[owned.ID] = owned

		return nil
	})
}

// Delete removes the workflow and cascades to its steps and transitions.
func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	return r.access.do(func(s *state) error {
		if _, ok := s.Workflows[id]; !ok {
			return persistence.NewEntityError("DeleteWorkflow", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		for _, projectType := range s.ProjectTypes {
			if projectType.DefaultWorkflowID != nil && *projectType.DefaultWorkflowID == id {
				return persistence.NewEntityError("DeleteWorkflow", "workflow", id, persistence.ErrReferenced)
			}
		}

		for transitionID, transition := range s.Transitions {
			if transition.WorkflowID == id {
				delete(s.Transitions, transitionID)
			}
		}

		for stepID, step := range s.Steps {
			if step.WorkflowID == id {
				delete(s.Steps, stepID)
			}
		}

		delete(s.Workflows, id)

		return nil
	})
}

// StepRepository handles workflow step operations and enforces the same uniqueness
// rules as the SQL schema.
type StepRepository struct {
	access access
}

func (r *StepRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowStep, error) {
	steps := make([]*models.WorkflowStep, 0)

	err := r.access.read(func(s *state) error {
		for _, step := range s.Steps {
			if step.WorkflowID == workflowID {
				steps = append(steps, step.Clone())
			}
		}

		return nil
	})

	slices.SortFunc(steps, func(a, b *models.WorkflowStep) int {
		return cmp.Compare(a.StepOrder, b.StepOrder)
	})

	return steps, err
}

func (r *StepRepository) GetByID(_ context.Context, id string) (*models.WorkflowStep, error) {
	var found *models.WorkflowStep

	err := r.access.read(func(s *state) error {
		step, ok := s.Steps[id]
		if !ok {
			return persistence.NewEntityError("GetStep", "step", id, persistence.ErrStepNotFound)
		}

		found = step.Clone()

		return nil
	})

	return found, err
}

func (r *StepRepository) Create(_ context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		step.ID = id
	}

	now := time.Now().UTC()
	step.CreatedAt = now
	step.UpdatedAt = now

	return r.access.do(func(s *state) error {
		if _, ok := s.Workflows[step.WorkflowID]; !ok {
			return persistence.NewEntityError("CreateStep", "step", step.ID,
				fmt.Errorf("%w: workflow %s", persistence.ErrInvalidReference, step.WorkflowID))
		}

		err := checkStep(s, step, "CreateStep")
		if err != nil {
			return err
		}

		owned := ownStep(step)
		s.Steps[owned.ID] = owned

		return nil
	})
}

func (r *StepRepository) Update(_ context.Context, step *models.WorkflowStep) error {
	step.UpdatedAt = time.Now().UTC()

	return r.access.do(func(s *state) error {
		existing, ok := s.Steps[step.ID]
		if !ok {
			return persistence.NewEntityError("UpdateStep", "step", step.ID, persistence.ErrStepNotFound)
		}

		updated := ownStep(step)
		updated.ID = existing.ID
		updated.WorkflowID = existing.WorkflowID
		updated.CreatedAt = existing.CreatedAt

		err := checkStep(s, updated, "UpdateStep")
		if err != nil {
			return err
		}

		s.Steps[existing.ID] = updated

		return nil
	})
}

func (r *StepRepository) UpdateOrder(_ context.Context, stepID string, stepOrder int) error {
	return r.access.do(func(s *state) error {
		existing, ok := s.Steps[stepID]
		if !ok {
			return persistence.NewEntityError("UpdateStepOrder", "step", stepID, persistence.ErrStepNotFound)
		}

		updated := existing.Clone()
		updated.StepOrder = stepOrder
		updated.UpdatedAt = time.Now().UTC()

		err := checkStep(s, updated, "UpdateStepOrder")
		if err != nil {
			return err
		}

		s.Steps[stepID] = updated

		return nil
	})
}

func (r *StepRepository) Delete(_ context.Context, id string) error {
	return r.access.do(func(s *state) error {
		if _, ok := s.Steps[id]; !ok {
			return persistence.NewEntityError("DeleteStep", "step", id, persistence.ErrStepNotFound)
		}

		for _, transition := range s.Transitions {
			if transition.FromStepID == id || transition.ToStepID == id {
				return persistence.NewEntityError("DeleteStep", "step", id, persistence.ErrReferenced)
			}
		}

		delete(s.Steps, id)

		return nil
	})
}

func (r *StepRepository) UnsettledWorkflows(_ context.Context) ([]string, error) {
	ids := make([]string, 0)

	err := r.access.read(func(s *state) error {
		for _, step := range s.Steps {
			if step.StepOrder < 1 && !slices.Contains(ids, step.WorkflowID) {
				ids = append(ids, step.WorkflowID)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(ids)

	return ids, nil
}

// checkStep applies the foreign key and unique constraints of workflow_steps to
// candidate, ignoring the row with the same ID.
func checkStep(s *state, candidate *models.WorkflowStep, op string) error {
	if _, ok := s.Statuses[candidate.StatusID]; !ok {
		return persistence.NewEntityError(op, "step", candidate.ID,
			fmt.Errorf("%w: status %s", persistence.ErrInvalidReference, candidate.StatusID))
	}

	if candidate.StepOrder == 0 {
		return persistence.NewEntityError(op, "step", candidate.ID, fmt.Errorf("step order must not be zero"))
	}

	for _, other := range s.Steps {
		if other.ID == candidate.ID || other.WorkflowID != candidate.WorkflowID {
			continue
		}

		switch {
		case other.StatusID == candidate.StatusID:
			return persistence.NewEntityError(op, "step", candidate.ID, persistence.ErrDuplicateStepStatus)
		case other.StepOrder == candidate.StepOrder:
			return persistence.NewEntityError(op, "step", candidate.ID, persistence.ErrDuplicateStepOrder)
		case other.IsInitialStep && candidate.IsInitialStep:
			return persistence.NewEntityError(op, "step", candidate.ID, persistence.ErrDuplicateInitialStep)
		}
	}

	return nil
}

// TransitionRepository handles transition operations.
type TransitionRepository struct {
	access access
}

func (r *TransitionRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowTransition, error) {
	return r.filter(func(t *models.WorkflowTransition) bool {
		return t.WorkflowID == workflowID
	})
}

func (r *TransitionRepository) GetByID(_ context.Context, id string) (*models.WorkflowTransition, error) {
	var found *models.WorkflowTransition

	err := r.access.read(func(s *state) error {
		transition, ok := s.Transitions[id]
		if !ok {
			return persistence.NewEntityError("GetTransition", "transition", id, persistence.ErrTransitionNotFound)
		}

		copied := *transition
		found = &copied

		return nil
	})

	return found, err
}

func (r *TransitionRepository) Find(_ context.Context, workflowID, fromStepID, toStepID string) (*models.WorkflowTransition, error) {
	matches, err := r.filter(func(t *models.WorkflowTransition) bool {
		return t.WorkflowID == workflowID && t.FromStepID == fromStepID && t.ToStepID == toStepID
	})
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, persistence.NewEntityError("FindTransition", "transition", "", persistence.ErrTransitionNotFound)
	}

	return matches[0], nil
}

func (r *TransitionRepository) GetOutgoing(_ context.Context, workflowID, fromStepID string) ([]*models.WorkflowTransition, error) {
	return r.filter(func(t *models.WorkflowTransition) bool {
		return t.WorkflowID == workflowID && t.FromStepID == fromStepID
	})
}

func (r *TransitionRepository) GetByStep(_ context.Context, stepID string) ([]*models.WorkflowTransition, error) {
	return r.filter(func(t *models.WorkflowTransition) bool {
		return t.FromStepID == stepID || t.ToStepID == stepID
	})
}

func (r *TransitionRepository) Create(_ context.Context, transition *models.WorkflowTransition) error {
	if transition.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		transition.ID = id
	}

	now := time.Now().UTC()
	transition.CreatedAt = now
	transition.UpdatedAt = now

	return r.access.do(func(s *state) error {
		if _, ok := s.Workflows[transition.WorkflowID]; !ok {
			return persistence.NewEntityError("CreateTransition", "transition", transition.ID,
				fmt.Errorf("%w: workflow %s", persistence.ErrInvalidReference, transition.WorkflowID))
		}

		for _, stepID := range []string{transition.FromStepID, transition.ToStepID} {
			step, ok := s.Steps[stepID]
			if !ok || step.WorkflowID != transition.WorkflowID {
				return persistence.NewEntityError("CreateTransition", "transition", transition.ID,
					fmt.Errorf("%w: step %s", persistence.ErrInvalidReference, stepID))
			}
		}

		for _, other := range s.Transitions {
			if other.WorkflowID == transition.WorkflowID &&
				other.FromStepID == transition.FromStepID &&
				other.ToStepID == transition.ToStepID {
				return persistence.NewEntityError("CreateTransition", "transition", transition.ID, persistence.ErrDuplicateTransition)
			}
		}

		owned := ownTransition(transition)
		s.Transitions[owned.ID] = owned

		return nil
	})
}

func (r *TransitionRepository) Update(_ context.Context, transition *models.WorkflowTransition) error {
	transition.UpdatedAt = time.Now().UTC()

	return r.access.do(func(s *state) error {
		existing, ok := s.Transitions[transition.ID]
		if !ok {
			return persistence.NewEntityError("UpdateTransition", "transition", transition.ID, persistence.ErrTransitionNotFound)
		}

		existing.Name = strings.Clone(transition.Name)
		existing.UpdatedAt = transition.UpdatedAt

		return nil
	})
}

func (r *TransitionRepository) Delete(_ context.Context, id string) error {
	return r.access.do(func(s *state) error {
		if _, ok := s.Transitions[id]; !ok {
			return persistence.NewEntityError("DeleteTransition", "transition", id, persistence.ErrTransitionNotFound)
		}

		delete(s.Transitions, id)

		return nil
	})
}

func (r *TransitionRepository) filter(keep func(t *models.WorkflowTransition) bool) ([]*models.WorkflowTransition, error) {
	transitions := make([]*models.WorkflowTransition, 0)

	err := r.access.read(func(s *state) error {
		for _, transition := range s.Transitions {
			if keep(transition) {
				copied := *transition
				transitions = append(transitions, &copied)
			}
		}

		return nil
	})

	slices.SortFunc(transitions, func(a, b *models.WorkflowTransition) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return transitions, err
}

// ProjectTypeRepository handles project type operations.
type ProjectTypeRepository struct {
	access access
}

func (r *ProjectTypeRepository) List(_ context.Context, includeArchived bool) ([]*models.ProjectType, error) {
	return r.filter(func(p *models.ProjectType) bool {
		return includeArchived || !p.IsArchived
	})
}

func (r *ProjectTypeRepository) GetByDefaultWorkflow(_ context.Context, workflowID string) ([]*models.ProjectType, error) {
	return r.filter(func(p *models.ProjectType) bool {
		return p.DefaultWorkflowID != nil && *p.DefaultWorkflowID == workflowID
	})
}

func (r *ProjectTypeRepository) GetByID(_ context.Context, id string) (*models.ProjectType, error) {
	var found *models.ProjectType

	err := r.access.read(func(s *state) error {
		projectType, ok := s.ProjectTypes[id]
		if !ok {
			return persistence.NewEntityError("GetProjectType", "project type", id, persistence.ErrProjectTypeNotFound)
		}

		found = copyProjectType(projectType)

		return nil
	})

	return found, err
}

func (r *ProjectTypeRepository) Save(_ context.Context, projectType *models.ProjectType) error {
	if projectType.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		projectType.ID = id
	}

	now := time.Now().UTC()
	if projectType.CreatedAt.IsZero() {
		projectType.CreatedAt = now
	}

	projectType.UpdatedAt = now

	return r.access.do(func(s *state) error {
		if projectType.DefaultWorkflowID != nil {
			if _, ok := s.Workflows[*projectType.DefaultWorkflowID]; !ok {
				return persistence.NewEntityError("SaveProjectType", "project type", projectType.ID,
					fmt.Errorf("%w: workflow %s", persistence.ErrInvalidReference, *projectType.DefaultWorkflowID))
			}
		}

		owned := ownProjectType(projectType)
		s.ProjectTypes[owned.ID] = owned

		return nil
	})
}

func (r *ProjectTypeRepository) filter(keep func(p *models.ProjectType) bool) ([]*models.ProjectType, error) {
	projectTypes := make([]*models.ProjectType, 0)

	err := r.access.read(func(s *state) error {
		for _, projectType := range s.ProjectTypes {
			if keep(projectType) {
				projectTypes = append(projectTypes, copyProjectType(projectType))
			}
		}

		return nil
	})

	slices.SortFunc(projectTypes, func(a, b *models.ProjectType) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), a.CreatedAt.Compare(b.CreatedAt))
	})

	return projectTypes, err
}

func copyProjectType(projectType *models.ProjectType) *models.ProjectType {
	copied := *projectType
	if projectType.DefaultWorkflowID != nil {
		id := *projectType.DefaultWorkflowID
		copied.DefaultWorkflowID = &id
	}

	return &copied
}
