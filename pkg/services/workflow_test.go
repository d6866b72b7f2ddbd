package services

import (
	"testing"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	p := newTestPersistence(t)
	engine := NewEngine(p)

	assert.NotNil(t, engine.Steps())
	assert.NotNil(t, engine.Transitions())
	assert.Equal(t, p, engine.persistence)

	message, healthy := engine.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestEngine_CreateUpdateArchive(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(t.Context(), CreateWorkflowRequest{Name: "  "})
	assert.True(t, IsBadInput(err))

	workflow, err := f.engine.Create(t.Context(), CreateWorkflowRequest{Name: "Sales Pipeline", Description: "deals", UserID: "u-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "u-1", workflow.CreatedByUserID)
	assert.False(t, workflow.CreatedAt.IsZero())

	description := "all deals"
	updated, err := f.engine.Update(t.Context(), workflow.ID, UpdateWorkflowRequest{Description: &description, UserID: "u-2"})
	require.NoError(t, err)
	assert.Equal(t, "Sales Pipeline", updated.Name)
	assert.Equal(t, description, updated.Description)
	assert.Equal(t, "u-1", updated.CreatedByUserID)
	assert.Equal(t, "u-2", updated.UpdatedByUserID)

	archived, err := f.engine.Archive(t.Context(), workflow.ID, "u-3")
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)

	active, err := f.engine.List(t.Context(), false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.engine.List(t.Context(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.engine.Update(t.Context(), "missing", UpdateWorkflowRequest{Description: &description})
	assert.True(t, IsNotFound(err))

	assert.Equal(t, []string{"workflow.created", "workflow.updated", "workflow.archived"}, f.publisher.types())
}

func TestEngine_GetByID(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)

	detail, err := f.engine.GetByID(t.Context(), workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, "Sales Pipeline", detail.Name)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, qualified.ID, detail.Steps[0].ID)
	assert.Equal(t, won.ID, detail.Steps[1].ID)
	require.Len(t, detail.Transitions, 1)
	assert.Equal(t, "Qualified→Won", detail.Transitions[0].Name)

	_, err = f.engine.GetByID(t.Context(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestEngine_Delete(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, _ := f.salesPipeline(t)

	result, err := f.engine.Delete(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = f.engine.GetByID(t.Context(), workflow.ID)
	assert.True(t, IsNotFound(err))

	_, err = f.engine.Steps().GetByID(t.Context(), qualified.ID)
	assert.True(t, IsNotFound(err))

	transitions, err := f.engine.Transitions().GetByWorkflow(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, transitions)

	_, err = f.engine.Delete(t.Context(), workflow.ID)
	assert.True(t, IsNotFound(err))
}

func TestEngine_Delete_BlockedByProjectType(t *testing.T) {
	f := newFixture(t)
	workflow, _, _ := f.salesPipeline(t)
	registry := NewProjectTypeRegistry(f.persistence)

	_, err := registry.Create(t.Context(), CreateProjectTypeRequest{Name: "Sales Deal", DefaultWorkflowID: &workflow.ID})
	require.NoError(t, err)

	_, err = f.engine.Delete(t.Context(), workflow.ID)
	require.Error(t, err)
	assert.True(t, IsBlockedDeletion(err))
	assert.Contains(t, MessageOf(err), "Sales Deal")

	detail, err := f.engine.GetByID(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Steps, 2)
}

func TestEngine_ValidateTransition_Allowed(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)

	assert.NoError(t, f.engine.ValidateTransition(t.Context(), workflow.ID, qualified.ID, won.ID))
}

func TestEngine_ValidateTransition_NoOutgoingEdges(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)

	err := f.engine.ValidateTransition(t.Context(), workflow.ID, won.ID, qualified.ID)
	require.Error(t, err)

	assert.True(t, IsTransitionIllegal(err))
	assert.Contains(t, err.Error(), "There are no defined transitions from 'Won'.")
	assert.Equal(t, "There are no defined transitions from 'Won'.", MessageOf(err))
}

func TestEngine_ValidateTransition_ListsAllowedSteps(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Deals")
	open := f.step(t, workflow.ID, f.status(t, "Open"), 1, true)
	won := f.step(t, workflow.ID, f.status(t, "Won"), 2, false)
	lost := f.step(t, workflow.ID, f.status(t, "Lost"), 3, false)
	archived := f.step(t, workflow.ID, f.status(t, "Archived"), 4, false)
	f.transition(t, workflow.ID, open.ID, won.ID, "")
	f.transition(t, workflow.ID, open.ID, lost.ID, "")

	err := f.engine.ValidateTransition(t.Context(), workflow.ID, open.ID, archived.ID)
	require.Error(t, err)

	assert.True(t, IsTransitionIllegal(err))
	assert.Equal(t,
		"Transition from 'Open' to 'Archived' is not allowed. Allowed next steps from 'Open' are: Won, Lost.",
		MessageOf(err))
}

func TestEngine_ValidateTransition_Errors(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)
	other := f.workflow(t, "Support")
	foreign := f.step(t, other.ID, f.status(t, "Open"), 1, true)

	err := f.engine.ValidateTransition(t.Context(), workflow.ID, "missing", won.ID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, MessageOf(err), "missing")

	err = f.engine.ValidateTransition(t.Context(), workflow.ID, foreign.ID, won.ID)
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
	assert.Contains(t, MessageOf(err), foreign.ID)

	err = f.engine.ValidateTransition(t.Context(), other.ID, qualified.ID, won.ID)
	assert.True(t, IsBadInput(err))
}

func TestEngine_ValidateTransition_StatusLookupFallsBackToStepID(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)

	engine := NewEngine(brokenStatuses{Persistence: f.persistence})

	err := engine.ValidateTransition(t.Context(), workflow.ID, won.ID, qualified.ID)
	require.Error(t, err)
	assert.True(t, IsTransitionIllegal(err))
	assert.Equal(t, "There are no defined transitions from '"+won.ID+"'.", MessageOf(err))
}

func TestEngine_GetInitialStep(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, _ := f.salesPipeline(t)

	initial, err := f.engine.GetInitialStep(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, qualified.ID, initial.ID)

	empty := f.workflow(t, "Empty")
	_, err = f.engine.GetInitialStep(t.Context(), empty.ID)
	assert.True(t, IsBadInput(err))

	_, err = f.engine.GetInitialStep(t.Context(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestEngine_StartAndAdvanceProject(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)

	ref, err := f.engine.StartProject(t.Context(), "deal-1", workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRef{ID: "deal-1", WorkflowID: workflow.ID, CurrentStepID: qualified.ID}, *ref)

	moved, err := f.engine.AdvanceProject(t.Context(), *ref, won.ID)
	require.NoError(t, err)
	assert.Equal(t, won.ID, moved.CurrentStepID)
	assert.Equal(t, qualified.ID, ref.CurrentStepID, "input reference is not mutated")

	_, err = f.engine.AdvanceProject(t.Context(), *moved, qualified.ID)
	require.Error(t, err)
	assert.True(t, IsTransitionIllegal(err))

	_, err = f.engine.AdvanceProject(t.Context(), models.ProjectRef{ID: "deal-2"}, won.ID)
	assert.True(t, IsBadInput(err))
}

func TestEngine_LockIsReleasedOnFailure(t *testing.T) {
	f := newFixture(t)
	workflow, qualified, won := f.salesPipeline(t)

	_, err := f.engine.Transitions().AddTransition(t.Context(), workflow.ID, AddTransitionRequest{FromStepID: qualified.ID, ToStepID: won.ID})
	require.Error(t, err)

	// A second mutation on the same workflow would block forever if the lock leaked.
	_, err = f.engine.Steps().ReorderSteps(t.Context(), workflow.ID, []string{won.ID, qualified.ID})
	require.NoError(t, err)
}

var _ persistence.Persistence = brokenStatuses{}
