// Package postgresql provides the PostgreSQL persistence implementation for workflow definitions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/pipecd-crm/wfm/pkg/persistence/sqlbase"

	_ "github.com/lib/pq" // registers the "postgres" driver
)

// querier is satisfied by both *sql.DB and *sql.Tx so repositories can run inside
// or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements persistence.Persistence for PostgreSQL.
type Persistence struct {
	*repositories

	db     *sql.DB
	logger *slog.Logger
}

type repositories struct {
	statusRepo      *StatusRepository
	workflowRepo    *WorkflowRepository
	stepRepo        *StepRepository
	transitionRepo  *TransitionRepository
	projectTypeRepo *ProjectTypeRepository
}

func newRepositories(q querier, logger *slog.Logger) *repositories {
	return &repositories{
		statusRepo:      NewStatusRepository(q, logger),
		workflowRepo:    NewWorkflowRepository(q, logger),
		stepRepo:        NewStepRepository(q, logger),
		transitionRepo:  NewTransitionRepository(q, logger),
		projectTypeRepo: NewProjectTypeRepository(q, logger),
	}
}

// NewPersistence connects to PostgreSQL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		repositories: newRepositories(database, logger),
		db:           database,
		logger:       logger,
	}, nil
}

// WithTx runs fn inside a single database transaction.
func (p *Persistence) WithTx(ctx context.Context, fn func(tx persistence.Repositories) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(newRepositories(tx, p.logger))
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (r *repositories) StatusRepository() persistence.StatusRepository {
	return r.statusRepo
}

func (r *repositories) WorkflowRepository() persistence.WorkflowRepository {
	return r.workflowRepo
}

func (r *repositories) StepRepository() persistence.StepRepository {
	return r.stepRepo
}

func (r *repositories) TransitionRepository() persistence.TransitionRepository {
	return r.transitionRepo
}

func (r *repositories) ProjectTypeRepository() persistence.ProjectTypeRepository {
	return r.projectTypeRepo
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}
