package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectTypeRegistry_Lifecycle(t *testing.T) {
	f := newFixture(t)
	registry := NewProjectTypeRegistry(f.persistence)
	deals := f.workflow(t, "Deals")
	leads := f.workflow(t, "Leads")

	_, err := registry.Create(t.Context(), CreateProjectTypeRequest{Name: ""})
	assert.True(t, IsBadInput(err))

	projectType, err := registry.Create(t.Context(), CreateProjectTypeRequest{
		Name:              "Sales Deal",
		DefaultWorkflowID: &deals.ID,
		IconName:          "briefcase",
	})
	require.NoError(t, err)
	require.NotNil(t, projectType.DefaultWorkflowID)
	assert.Equal(t, deals.ID, *projectType.DefaultWorkflowID)

	updated, err := registry.Update(t.Context(), projectType.ID, UpdateProjectTypeRequest{DefaultWorkflowID: &leads.ID})
	require.NoError(t, err)
	assert.Equal(t, leads.ID, *updated.DefaultWorkflowID)
	assert.Equal(t, "briefcase", updated.IconName)

	// The old default can be deleted once nothing points at it.
	_, err = f.engine.Delete(t.Context(), deals.ID)
	require.NoError(t, err)

	updated, err = registry.Update(t.Context(), projectType.ID, UpdateProjectTypeRequest{ClearDefaultWorkflow: true})
	require.NoError(t, err)
	assert.Nil(t, updated.DefaultWorkflowID)

	archived, err := registry.Archive(t.Context(), projectType.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)

	active, err := registry.List(t.Context(), false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := registry.List(t.Context(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProjectTypeRegistry_Errors(t *testing.T) {
	f := newFixture(t)
	registry := NewProjectTypeRegistry(f.persistence)

	missing := "missing"
	_, err := registry.Create(t.Context(), CreateProjectTypeRequest{Name: "Lead", DefaultWorkflowID: &missing})
	require.Error(t, err)
	assert.True(t, IsReference(err))
	assert.Equal(t, "Invalid default workflow ID", MessageOf(err))

	_, err = registry.GetByID(t.Context(), "missing")
	assert.True(t, IsNotFound(err))

	projectType, err := registry.Create(t.Context(), CreateProjectTypeRequest{Name: "Lead"})
	require.NoError(t, err)

	_, err = registry.Update(t.Context(), projectType.ID, UpdateProjectTypeRequest{DefaultWorkflowID: &missing, ClearDefaultWorkflow: true})
	assert.True(t, IsBadInput(err))
}
