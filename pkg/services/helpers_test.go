package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pipecd-crm/wfm/pkg/eventbus"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/pipecd-crm/wfm/pkg/persistence/file"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, string(event.GetType()))
	}

	return types
}

func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p
}

type fixture struct {
	persistence persistence.Persistence
	engine      *Engine
	statuses    *StatusCatalog
	publisher   *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	p := newTestPersistence(t)
	publisher := &recordingPublisher{}
	opts = append([]Option{WithPublisher(publisher)}, opts...)

	return &fixture{
		persistence: p,
		engine:      NewEngine(p, opts...),
		statuses:    NewStatusCatalog(p, opts...),
		publisher:   publisher,
	}
}

func (f *fixture) status(t *testing.T, name string) *models.Status {
	t.Helper()

	status, err := f.statuses.Create(t.Context(), name, "#000000")
	require.NoError(t, err)

	return status
}

func (f *fixture) workflow(t *testing.T, name string) *models.Workflow {
	t.Helper()

	workflow, err := f.engine.Create(t.Context(), CreateWorkflowRequest{Name: name, UserID: "user-1"})
	require.NoError(t, err)

	return workflow
}

func (f *fixture) step(t *testing.T, workflowID string, status *models.Status, order int, initial bool) *models.WorkflowStep {
	t.Helper()

	step, err := f.engine.Steps().AddStep(t.Context(), workflowID, AddStepRequest{
		StatusID:      status.ID,
		StepOrder:     order,
		IsInitialStep: initial,
	})
	require.NoError(t, err)

	return step
}

func (f *fixture) transition(t *testing.T, workflowID, from, to, name string) *models.WorkflowTransition {
	t.Helper()

	transition, err := f.engine.Transitions().AddTransition(t.Context(), workflowID, AddTransitionRequest{
		FromStepID: from,
		ToStepID:   to,
		Name:       name,
	})
	require.NoError(t, err)

	return transition
}

// salesPipeline builds the "Sales Pipeline" workflow with Qualified (initial) -> Won.
func (f *fixture) salesPipeline(t *testing.T) (*models.Workflow, *models.WorkflowStep, *models.WorkflowStep) {
	t.Helper()

	workflow := f.workflow(t, "Sales Pipeline")
	qualified := f.step(t, workflow.ID, f.status(t, "Qualified"), 1, true)
	won := f.step(t, workflow.ID, f.status(t, "Won"), 2, false)
	f.transition(t, workflow.ID, qualified.ID, won.ID, "Qualified→Won")

	return workflow, qualified, won
}

// brokenStatuses fails every status lookup while delegating everything else.
type brokenStatuses struct {
	persistence.Persistence
}

func (b brokenStatuses) StatusRepository() persistence.StatusRepository {
	return brokenStatusRepository{}
}

type brokenStatusRepository struct{}

var errStatusStoreDown = errors.New("status store unavailable")

func (brokenStatusRepository) List(context.Context, bool) ([]*models.Status, error) {
	return nil, errStatusStoreDown
}

func (brokenStatusRepository) GetByID(context.Context, string) (*models.Status, error) {
	return nil, errStatusStoreDown
}

func (brokenStatusRepository) Save(context.Context, *models.Status) error {
	return errStatusStoreDown
}

func stepOrders(steps []*models.WorkflowStep) map[string]int {
	orders := make(map[string]int, len(steps))
	for _, step := range steps {
		orders[step.ID] = step.StepOrder
	}

	return orders
}
