package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/persistence"
)

const projectTypeColumns = `id, name, description, default_workflow_id, icon_name, is_archived, created_at, updated_at`

// ProjectTypeRepository handles project type database operations.
type ProjectTypeRepository struct {
	db     querier
	logger *slog.Logger
}

// NewProjectTypeRepository creates a new project type repository.
func NewProjectTypeRepository(db querier, logger *slog.Logger) *ProjectTypeRepository {
	return &ProjectTypeRepository{db: db, logger: logger}
}

// List returns project types ordered by name.
func (r *ProjectTypeRepository) List(ctx context.Context, includeArchived bool) ([]*models.ProjectType, error) {
	return r.query(ctx, `SELECT `+projectTypeColumns+`
		FROM project_types
		WHERE $1 OR NOT is_archived
		ORDER BY name, created_at
	`, includeArchived)
}

// GetByDefaultWorkflow returns the project types using workflowID as their default.
func (r *ProjectTypeRepository) GetByDefaultWorkflow(ctx context.Context, workflowID string) ([]*models.ProjectType, error) {
	return r.query(ctx, `SELECT `+projectTypeColumns+`
		FROM project_types
		WHERE default_workflow_id = $1
		ORDER BY name, created_at
	`, workflowID)
}

// GetByID returns a project type or persistence.ErrProjectTypeNotFound.
func (r *ProjectTypeRepository) GetByID(ctx context.Context, id string) (*models.ProjectType, error) {
	query := `SELECT ` + projectTypeColumns + ` FROM project_types WHERE id = $1`

	projectType, err := r.scanProjectType(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetProjectType", "project type", id, persistence.ErrProjectTypeNotFound)
		}

		return nil, fmt.Errorf("failed to scan project type: %w", err)
	}

	return projectType, nil
}

// Save inserts or updates a project type.
func (r *ProjectTypeRepository) Save(ctx context.Context, projectType *models.ProjectType) error {
	now := time.Now().UTC()

	if projectType.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate project type ID: %w", err)
		}

		projectType.ID = id.String()
	}

	if projectType.CreatedAt.IsZero() {
		projectType.CreatedAt = now
	}

	projectType.UpdatedAt = now

	query := `
		INSERT INTO project_types (` + projectTypeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			default_workflow_id = EXCLUDED.default_workflow_id,
			icon_name = EXCLUDED.icon_name,
			is_archived = EXCLUDED.is_archived,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		projectType.ID,
		projectType.Name,
		projectType.Description,
		projectType.DefaultWorkflowID,
		projectType.IconName,
		projectType.IsArchived,
		projectType.CreatedAt,
		projectType.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveProjectType", "project type", projectType.ID, mapWriteError(err))
	}

	return nil
}

func (r *ProjectTypeRepository) query(ctx context.Context, query string, args ...any) ([]*models.ProjectType, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query project types: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	projectTypes := make([]*models.ProjectType, 0)

	for rows.Next() {
		projectType, err := r.scanProjectType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project type: %w", err)
		}

		projectTypes = append(projectTypes, projectType)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating project types: %w", err)
	}

	return projectTypes, nil
}

func (r *ProjectTypeRepository) scanProjectType(row scanner) (*models.ProjectType, error) {
	var (
		projectType       models.ProjectType
		defaultWorkflowID sql.NullString
	)

	err := row.Scan(
		&projectType.ID,
		&projectType.Name,
		&projectType.Description,
		&defaultWorkflowID,
		&projectType.IconName,
		&projectType.IsArchived,
		&projectType.CreatedAt,
		&projectType.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if defaultWorkflowID.Valid {
		projectType.DefaultWorkflowID = &defaultWorkflowID.String
	}

	return &projectType, nil
}
