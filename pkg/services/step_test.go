package services

import (
	"sync"
	"testing"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStore_AddStep(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Leads")
	status := f.status(t, "New")

	step, err := f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{
		StatusID:      status.ID,
		StepOrder:     1,
		IsInitialStep: true,
		Metadata:      map[string]any{"stage": "top"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, step.ID)
	assert.Equal(t, workflow.ID, step.WorkflowID)
	assert.Equal(t, 1, step.StepOrder)
	assert.True(t, step.IsInitialStep)

	stored, err := f.engine.Steps().GetByID(t.Context(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, "top", stored.Metadata["stage"])

	assert.Contains(t, f.publisher.types(), "workflow.step.added")
}

func TestStepStore_AddStep_DuplicateStatus(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Leads")
	status := f.status(t, "New")
	f.step(t, workflow.ID, status, 1, false)

	_, err := f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{StatusID: status.ID, StepOrder: 2})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	steps, err := f.engine.Steps().GetByWorkflow(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestStepStore_AddStep_Rejections(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Leads")
	status := f.status(t, "New")
	f.step(t, workflow.ID, status, 1, true)

	_, err := f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{StatusID: f.status(t, "Lost").ID, StepOrder: 0})
	assert.True(t, IsBadInput(err))

	_, err = f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{StatusID: f.status(t, "Open").ID, StepOrder: 2, IsInitialStep: true})
	assert.True(t, IsConflict(err), "second initial step")

	_, err = f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{StatusID: "missing", StepOrder: 3})
	assert.True(t, IsReference(err))

	_, err = f.engine.Steps().AddStep(t.Context(), "missing", AddStepRequest{StatusID: status.ID, StepOrder: 1})
	assert.True(t, IsNotFound(err))
}

func TestStepStore_AddStep_MetadataSchema(t *testing.T) {
	validator, err := schema.NewMetadataValidator([]byte(`{"type":"object","required":["probability"]}`))
	require.NoError(t, err)

	f := newFixture(t, WithMetadataSchema(validator))
	workflow := f.workflow(t, "Deals")

	_, err = f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{
		StatusID:  f.status(t, "Negotiation").ID,
		StepOrder: 1,
		Metadata:  map[string]any{"color": "red"},
	})
	require.Error(t, err)
	assert.True(t, IsBadInput(err))
	assert.Contains(t, MessageOf(err), "probability")
}

func TestStepStore_UpdateStep_PartialFields(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Deals")
	step, err := f.engine.Steps().AddStep(t.Context(), workflow.ID, AddStepRequest{
		StatusID:  f.status(t, "Proposal").ID,
		StepOrder: 1,
		Metadata:  map[string]any{"owner": "sales"},
	})
	require.NoError(t, err)

	final := true
	updated, err := f.engine.Steps().UpdateStep(t.Context(), step.ID, UpdateStepRequest{IsFinalStep: &final})
	require.NoError(t, err)

	assert.True(t, updated.IsFinalStep)
	assert.Equal(t, 1, updated.StepOrder)
	assert.Equal(t, "sales", updated.Metadata["owner"], "absent metadata is left unchanged")

	updated, err = f.engine.Steps().UpdateStep(t.Context(), step.ID, UpdateStepRequest{Metadata: models.SetMetadata(map[string]any{"owner": "ops"})})
	require.NoError(t, err)
	assert.Equal(t, "ops", updated.Metadata["owner"])

	updated, err = f.engine.Steps().UpdateStep(t.Context(), step.ID, UpdateStepRequest{Metadata: models.ClearMetadata()})
	require.NoError(t, err)
	assert.Nil(t, updated.Metadata)

	stored, err := f.engine.Steps().GetByID(t.Context(), step.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Metadata)
	assert.True(t, stored.IsFinalStep)
}

func TestStepStore_UpdateStep_Errors(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Deals")
	first := f.step(t, workflow.ID, f.status(t, "Open"), 1, true)
	second := f.step(t, workflow.ID, f.status(t, "Closed"), 2, false)

	_, err := f.engine.Steps().UpdateStep(t.Context(), "missing", UpdateStepRequest{})
	assert.True(t, IsNotFound(err))

	initial := true
	_, err = f.engine.Steps().UpdateStep(t.Context(), second.ID, UpdateStepRequest{IsInitialStep: &initial})
	assert.True(t, IsConflict(err))

	order := first.StepOrder
	_, err = f.engine.Steps().UpdateStep(t.Context(), second.ID, UpdateStepRequest{StepOrder: &order})
	assert.True(t, IsConflict(err))

	negative := -4
	_, err = f.engine.Steps().UpdateStep(t.Context(), second.ID, UpdateStepRequest{StepOrder: &negative})
	assert.True(t, IsBadInput(err))
}

func TestStepStore_UpdateStep_WorkflowDeleted(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Deals")
	step := f.step(t, workflow.ID, f.status(t, "Open"), 1, true)

	_, err := f.engine.Delete(t.Context(), workflow.ID)
	require.NoError(t, err)

	final := true
	_, err = f.engine.Steps().UpdateStep(t.Context(), step.ID, UpdateStepRequest{IsFinalStep: &final})
	assert.True(t, IsNotFound(err))
}

func TestStepStore_RemoveStep_Guarded(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Support")
	a := f.step(t, workflow.ID, f.status(t, "Open"), 1, true)
	b := f.step(t, workflow.ID, f.status(t, "Closed"), 2, false)
	transition := f.transition(t, workflow.ID, a.ID, b.ID, "")

	for _, step := range []*models.WorkflowStep{a, b} {
		_, err := f.engine.Steps().RemoveStep(t.Context(), step.ID)
		require.Error(t, err)
		assert.True(t, IsBlockedDeletion(err))
		assert.Contains(t, MessageOf(err), "Unnamed")
	}

	result, err := f.engine.Transitions().RemoveTransition(t.Context(), transition.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	for _, step := range []*models.WorkflowStep{a, b} {
		result, err := f.engine.Steps().RemoveStep(t.Context(), step.ID)
		require.NoError(t, err)
		assert.True(t, result.Success)
	}

	steps, err := f.engine.Steps().GetByWorkflow(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestStepStore_RemoveStep_NamesBlockingTransitions(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Support")
	a := f.step(t, workflow.ID, f.status(t, "Open"), 1, true)
	b := f.step(t, workflow.ID, f.status(t, "Pending"), 2, false)
	c := f.step(t, workflow.ID, f.status(t, "Closed"), 3, false)
	f.transition(t, workflow.ID, a.ID, b.ID, "Start work")
	f.transition(t, workflow.ID, b.ID, c.ID, "Resolve")

	_, err := f.engine.Steps().RemoveStep(t.Context(), b.ID)
	require.Error(t, err)
	assert.Contains(t, MessageOf(err), "Start work")
	assert.Contains(t, MessageOf(err), "Resolve")
}

func TestStepStore_ReorderSteps(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Pipeline")
	a := f.step(t, workflow.ID, f.status(t, "A"), 1, true)
	b := f.step(t, workflow.ID, f.status(t, "B"), 2, false)
	c := f.step(t, workflow.ID, f.status(t, "C"), 3, false)

	order := []string{c.ID, a.ID, b.ID}

	first, err := f.engine.Steps().ReorderSteps(t.Context(), workflow.ID, order)
	require.NoError(t, err)
	require.Len(t, first, 3)

	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{first[0].ID, first[1].ID, first[2].ID})
	assert.Equal(t, map[string]int{c.ID: 1, a.ID: 2, b.ID: 3}, stepOrders(first))

	second, err := f.engine.Steps().ReorderSteps(t.Context(), workflow.ID, order)
	require.NoError(t, err)
	assert.Equal(t, stepOrders(first), stepOrders(second))

	assert.Contains(t, f.publisher.types(), "workflow.steps.reordered")
}

func TestStepStore_ReorderSteps_RejectsNonPermutation(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Pipeline")
	other := f.workflow(t, "Other")
	a := f.step(t, workflow.ID, f.status(t, "A"), 1, true)
	b := f.step(t, workflow.ID, f.status(t, "B"), 2, false)
	foreign := f.step(t, other.ID, f.status(t, "C"), 1, true)

	tests := map[string][]string{
		"missing step":   {a.ID},
		"duplicate step": {a.ID, a.ID},
		"foreign step":   {a.ID, foreign.ID},
		"extra step":     {a.ID, b.ID, foreign.ID},
	}

	for name, ids := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Steps().ReorderSteps(t.Context(), workflow.ID, ids)
			require.Error(t, err)
			assert.True(t, IsBadInput(err))
		})
	}

	steps, err := f.engine.Steps().GetByWorkflow(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a.ID: 1, b.ID: 2}, stepOrders(steps))

	_, err = f.engine.Steps().ReorderSteps(t.Context(), "missing", nil)
	assert.True(t, IsNotFound(err))
}

func TestStepStore_ReorderSteps_Concurrent(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Pipeline")

	ids := make([]string, 0, 5)
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		ids = append(ids, f.step(t, workflow.ID, f.status(t, name), i+1, i == 0).ID)
	}

	reversed := []string{ids[4], ids[3], ids[2], ids[1], ids[0]}

	var wg sync.WaitGroup

	for i := range 10 {
		order := ids
		if i%2 == 1 {
			order = reversed
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.engine.Steps().ReorderSteps(t.Context(), workflow.ID, order)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	steps, err := f.engine.Steps().GetByWorkflow(t.Context(), workflow.ID)
	require.NoError(t, err)

	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
	}
}

func TestStepStore_RepairStepOrder(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Pipeline")
	a := f.step(t, workflow.ID, f.status(t, "A"), 1, true)
	b := f.step(t, workflow.ID, f.status(t, "B"), 2, false)
	c := f.step(t, workflow.ID, f.status(t, "C"), 5, false)

	// Simulate an interrupted reorder: c and a already quarantined, b untouched.
	repo := f.persistence.StepRepository()
	require.NoError(t, repo.UpdateOrder(t.Context(), c.ID, -1))
	require.NoError(t, repo.UpdateOrder(t.Context(), a.ID, -2))

	unsettled, err := f.engine.Steps().UnsettledWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{workflow.ID}, unsettled)

	repaired, changed, err := f.engine.Steps().RepairStepOrder(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string]int{c.ID: 1, a.ID: 2, b.ID: 3}, stepOrders(repaired))

	_, changed, err = f.engine.Steps().RepairStepOrder(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	unsettled, err = f.engine.Steps().UnsettledWorkflows(t.Context())
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}

func TestStepStore_UnsettledLeavesGapsToExplicitRepair(t *testing.T) {
	f := newFixture(t)
	workflow := f.workflow(t, "Pipeline")
	a := f.step(t, workflow.ID, f.status(t, "A"), 10, true)
	b := f.step(t, workflow.ID, f.status(t, "B"), 20, false)

	unsettled, err := f.engine.Steps().UnsettledWorkflows(t.Context())
	require.NoError(t, err)
	assert.Empty(t, unsettled)

	repaired, changed, err := f.engine.Steps().RepairStepOrder(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string]int{a.ID: 1, b.ID: 2}, stepOrders(repaired))
}

func TestCompareRepairOrder(t *testing.T) {
	assert.Negative(t, compareRepairOrder(-1, -2))
	assert.Negative(t, compareRepairOrder(-3, 1))
	assert.Positive(t, compareRepairOrder(2, -5))
	assert.Negative(t, compareRepairOrder(2, 7))
	assert.Zero(t, compareRepairOrder(4, 4))
}
