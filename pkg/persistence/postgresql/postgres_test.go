package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/pipecd-crm/wfm/pkg/persistence/postgresql"
	"github.com/pipecd-crm/wfm/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last.
	for _, table := range []string{"project_types", "workflow_transitions", "workflow_steps", "workflows", "statuses", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("wfm_test"),
			postgres.WithUsername("wfm"),
			postgres.WithPassword("wfm"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func seedWorkflow(ctx context.Context, t *testing.T, p persistence.Persistence, name string) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{Name: name}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	return workflow
}

func seedStep(ctx context.Context, t *testing.T, p persistence.Persistence, workflowID, statusName string, order int) *models.WorkflowStep {
	t.Helper()

	status := &models.Status{Name: statusName}
	require.NoError(t, p.StatusRepository().Save(ctx, status))

	step := &models.WorkflowStep{WorkflowID: workflowID, StatusID: status.ID, StepOrder: order}
	require.NoError(t, p.StepRepository().Create(ctx, step))

	return step
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	for _, table := range []string{"statuses", "workflows", "workflow_steps", "workflow_transitions", "project_types"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestNewPersistence_ConcurrentStartup(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	logger := slog.New(slog.DiscardHandler)

	var wg sync.WaitGroup

	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			replica, err := postgresql.NewPersistence(ctx, logger, databaseURL)
			if err == nil {
				err = replica.Close(ctx)
			}

			errs[i] = err
		}()
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var applied int

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
}

func TestStepRepository_Constraints(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := seedWorkflow(ctx, t, p, "Deals")
	qualified := seedStep(ctx, t, p, workflow.ID, "Qualified", 1)

	duplicateStatus := &models.WorkflowStep{WorkflowID: workflow.ID, StatusID: qualified.StatusID, StepOrder: 2}
	assert.ErrorIs(t, p.StepRepository().Create(ctx, duplicateStatus), persistence.ErrDuplicateStepStatus)

	won := &models.Status{Name: "Won"}
	require.NoError(t, p.StatusRepository().Save(ctx, won))

	duplicateOrder := &models.WorkflowStep{WorkflowID: workflow.ID, StatusID: won.ID, StepOrder: 1}
	assert.ErrorIs(t, p.StepRepository().Create(ctx, duplicateOrder), persistence.ErrDuplicateStepOrder)

	qualified.IsInitialStep = true
	require.NoError(t, p.StepRepository().Update(ctx, qualified))

	secondInitial := &models.WorkflowStep{WorkflowID: workflow.ID, StatusID: won.ID, StepOrder: 2, IsInitialStep: true}
	assert.ErrorIs(t, p.StepRepository().Create(ctx, secondInitial), persistence.ErrDuplicateInitialStep)

	missingStatus := &models.WorkflowStep{WorkflowID: workflow.ID, StatusID: "missing", StepOrder: 3}
	assert.ErrorIs(t, p.StepRepository().Create(ctx, missingStatus), persistence.ErrInvalidReference)

	_, err := p.StepRepository().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrStepNotFound)
}

func TestStepRepository_MetadataRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := seedWorkflow(ctx, t, p, "Deals")
	step := seedStep(ctx, t, p, workflow.ID, "Qualified", 1)

	step.Metadata = map[string]any{"probability": 0.4, "owner": "sales"}
	require.NoError(t, p.StepRepository().Update(ctx, step))

	fetched, err := p.StepRepository().GetByID(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"probability": 0.4, "owner": "sales"}, fetched.Metadata)

	fetched.Metadata = nil
	require.NoError(t, p.StepRepository().Update(ctx, fetched))

	cleared, err := p.StepRepository().GetByID(ctx, step.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.Metadata)
}

func TestStepRepository_UnsettledWorkflows(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	settled := seedWorkflow(ctx, t, p, "Settled")
	seedStep(ctx, t, p, settled.ID, "A", 1)
	seedStep(ctx, t, p, settled.ID, "B", 2)

	gapped := seedWorkflow(ctx, t, p, "Gapped")
	seedStep(ctx, t, p, gapped.ID, "C", 1)
	seedStep(ctx, t, p, gapped.ID, "D", 5)

	interrupted := seedWorkflow(ctx, t, p, "Interrupted")
	step := seedStep(ctx, t, p, interrupted.ID, "E", 1)
	require.NoError(t, p.StepRepository().UpdateOrder(ctx, step.ID, -1))

	unsettled, err := p.StepRepository().UnsettledWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{interrupted.ID}, unsettled)
}

func TestTransitionRepository_Constraints(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	deals := seedWorkflow(ctx, t, p, "Deals")
	qualified := seedStep(ctx, t, p, deals.ID, "Qualified", 1)
	won := seedStep(ctx, t, p, deals.ID, "Won", 2)

	leads := seedWorkflow(ctx, t, p, "Leads")
	foreign := seedStep(ctx, t, p, leads.ID, "New", 1)

	edge := &models.WorkflowTransition{WorkflowID: deals.ID, FromStepID: qualified.ID, ToStepID: won.ID, Name: "Close"}
	require.NoError(t, p.TransitionRepository().Create(ctx, edge))

	duplicate := &models.WorkflowTransition{WorkflowID: deals.ID, FromStepID: qualified.ID, ToStepID: won.ID}
	assert.ErrorIs(t, p.TransitionRepository().Create(ctx, duplicate), persistence.ErrDuplicateTransition)

	crossWorkflow := &models.WorkflowTransition{WorkflowID: deals.ID, FromStepID: qualified.ID, ToStepID: foreign.ID}
	assert.ErrorIs(t, p.TransitionRepository().Create(ctx, crossWorkflow), persistence.ErrInvalidReference)

	found, err := p.TransitionRepository().Find(ctx, deals.ID, qualified.ID, won.ID)
	require.NoError(t, err)
	assert.Equal(t, edge.ID, found.ID)

	_, err = p.TransitionRepository().Find(ctx, deals.ID, won.ID, qualified.ID)
	assert.ErrorIs(t, err, persistence.ErrTransitionNotFound)

	byStep, err := p.TransitionRepository().GetByStep(ctx, won.ID)
	require.NoError(t, err)
	require.Len(t, byStep, 1)

	assert.ErrorIs(t, p.StepRepository().Delete(ctx, won.ID), persistence.ErrReferenced)
}

func TestWorkflowRepository_DeleteCascadesAndGuards(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := seedWorkflow(ctx, t, p, "Deals")
	qualified := seedStep(ctx, t, p, workflow.ID, "Qualified", 1)
	won := seedStep(ctx, t, p, workflow.ID, "Won", 2)
	require.NoError(t, p.TransitionRepository().Create(ctx, &models.WorkflowTransition{
		WorkflowID: workflow.ID, FromStepID: qualified.ID, ToStepID: won.ID,
	}))

	projectType := &models.ProjectType{Name: "Sales Deal", DefaultWorkflowID: &workflow.ID}
	require.NoError(t, p.ProjectTypeRepository().Save(ctx, projectType))

	assert.ErrorIs(t, p.WorkflowRepository().Delete(ctx, workflow.ID), persistence.ErrReferenced)

	projectType.DefaultWorkflowID = nil
	require.NoError(t, p.ProjectTypeRepository().Save(ctx, projectType))

	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	steps, err := p.StepRepository().GetByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)

	assert.ErrorIs(t, p.WorkflowRepository().Delete(ctx, workflow.ID), persistence.ErrWorkflowNotFound)
}

func TestPersistence_WithTxRollsBack(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := seedWorkflow(ctx, t, p, "Deals")
	step := seedStep(ctx, t, p, workflow.ID, "Qualified", 1)

	errAbort := errors.New("abort")

	err := p.WithTx(ctx, func(tx persistence.Repositories) error {
		require.NoError(t, tx.StepRepository().UpdateOrder(ctx, step.ID, -1))

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	fetched, err := p.StepRepository().GetByID(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.StepOrder)
}

func TestEngine_ReorderOnPostgres(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	engine := services.NewEngine(p)

	workflow := seedWorkflow(ctx, t, p, "Deals")
	a := seedStep(ctx, t, p, workflow.ID, "A", 1)
	b := seedStep(ctx, t, p, workflow.ID, "B", 2)
	c := seedStep(ctx, t, p, workflow.ID, "C", 3)

	steps, err := engine.Steps().ReorderSteps(ctx, workflow.ID, []string{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{steps[0].ID, steps[1].ID, steps[2].ID})

	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
	}
}
