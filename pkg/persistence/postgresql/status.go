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

// StatusRepository handles status catalog database operations.
type StatusRepository struct {
	db     querier
	logger *slog.Logger
}

// NewStatusRepository creates a new status repository.
func NewStatusRepository(db querier, logger *slog.Logger) *StatusRepository {
	return &StatusRepository{db: db, logger: logger}
}

// List returns statuses ordered by name.
func (r *StatusRepository) List(ctx context.Context, includeArchived bool) ([]*models.Status, error) {
	query := `
		SELECT id, name, color, is_archived, created_at, updated_at
		FROM statuses
		WHERE $1 OR NOT is_archived
		ORDER BY name, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	statuses := make([]*models.Status, 0)

	for rows.Next() {
		status, err := r.scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}

		statuses = append(statuses, status)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}

	return statuses, nil
}

// GetByID returns a status or persistence.ErrStatusNotFound.
func (r *StatusRepository) GetByID(ctx context.Context, id string) (*models.Status, error) {
	query := `
		SELECT id, name, color, is_archived, created_at, updated_at
		FROM statuses
		WHERE id = $1
	`

	status, err := r.scanStatus(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetStatus", "status", id, persistence.ErrStatusNotFound)
		}

		return nil, fmt.Errorf("failed to scan status: %w", err)
	}

	return status, nil
}

// Save inserts or updates a status, generating an ID when missing.
func (r *StatusRepository) Save(ctx context.Context, status *models.Status) error {
	now := time.Now().UTC()

	if status.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate status ID: %w", err)
		}

		status.ID = id.String()
	}

	if status.CreatedAt.IsZero() {
		status.CreatedAt = now
	}

	status.UpdatedAt = now

	query := `
		INSERT INTO statuses (id, name, color, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			color = EXCLUDED.color,
			is_archived = EXCLUDED.is_archived,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		status.ID,
		status.Name,
		status.Color,
		status.IsArchived,
		status.CreatedAt,
		status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save status: %w", mapWriteError(err))
	}

	return nil
}

func (r *StatusRepository) scanStatus(row scanner) (*models.Status, error) {
	var status models.Status

	err := row.Scan(
		&status.ID,
		&status.Name,
		&status.Color,
		&status.IsArchived,
		&status.CreatedAt,
		&status.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &status, nil
}
