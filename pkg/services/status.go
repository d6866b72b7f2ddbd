package services

import (
	"context"
	"strings"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateStatusRequest holds the status fields to change. Nil fields are left untouched.
type UpdateStatusRequest struct {
	Name  *string
	Color *string
}

// StatusCatalog manages the registry of named statuses.
type StatusCatalog struct {
	base
}

// NewStatusCatalog creates a new status catalog service.
func NewStatusCatalog(p persistence.Persistence, opts ...Option) *StatusCatalog {
	return &StatusCatalog{base: newBase(p, opts)}
}

func (c *StatusCatalog) List(ctx context.Context, includeArchived bool) ([]*models.Status, error) {
	statuses, err := c.persistence.StatusRepository().List(ctx, includeArchived)
	if err != nil {
		return nil, c.fail(ctx, "ListStatuses", err, "")
	}

	return statuses, nil
}

func (c *StatusCatalog) GetByID(ctx context.Context, id string) (*models.Status, error) {
	status, err := c.persistence.StatusRepository().GetByID(ctx, id)
	if err != nil {
		return nil, c.fail(ctx, "GetStatus", err, "")
	}

	return status, nil
}

func (c *StatusCatalog) Create(ctx context.Context, name, color string) (*models.Status, error) {
	ctx, span := c.startSpan(ctx, "status.create")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, badInputError("CreateStatus", "Status name is required")
	}

	status := &models.Status{
		Name:  name,
		Color: color,
	}

	err := c.persistence.StatusRepository().Save(ctx, status)
	if err != nil {
		return nil, c.fail(ctx, "CreateStatus", err, "")
	}

	span.SetAttributes(attribute.String(otelhelper.StatusIDKey, status.ID))

	return status, nil
}

func (c *StatusCatalog) Update(ctx context.Context, id string, req UpdateStatusRequest) (*models.Status, error) {
	ctx, span := c.startSpan(ctx, "status.update", attribute.String(otelhelper.StatusIDKey, id))
	defer span.End()

	status, err := c.persistence.StatusRepository().GetByID(ctx, id)
	if err != nil {
		return nil, c.fail(ctx, "UpdateStatus", err, "")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, badInputError("UpdateStatus", "Status name cannot be empty")
		}

		status.Name = name
	}

	if req.Color != nil {
		status.Color = *req.Color
	}

	err = c.persistence.StatusRepository().Save(ctx, status)
	if err != nil {
		return nil, c.fail(ctx, "UpdateStatus", err, "")
	}

	return status, nil
}

// Archive soft-deletes a status. Steps that point at it keep working.
func (c *StatusCatalog) Archive(ctx context.Context, id string) (*models.Status, error) {
	ctx, span := c.startSpan(ctx, "status.archive", attribute.String(otelhelper.StatusIDKey, id))
	defer span.End()

	status, err := c.persistence.StatusRepository().GetByID(ctx, id)
	if err != nil {
		return nil, c.fail(ctx, "ArchiveStatus", err, "")
	}

	if status.IsArchived {
		return status, nil
	}

	status.IsArchived = true

	err = c.persistence.StatusRepository().Save(ctx, status)
	if err != nil {
		return nil, c.fail(ctx, "ArchiveStatus", err, "")
	}

	return status, nil
}
