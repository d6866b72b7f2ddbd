package services

import (
	"context"
	"strings"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

const msgInvalidDefaultWorkflow = "Invalid default workflow ID"

// CreateProjectTypeRequest represents the request to register a project type.
type CreateProjectTypeRequest struct {
	Name              string
	Description       string
	DefaultWorkflowID *string
	IconName          string
}

// UpdateProjectTypeRequest holds the project type fields to change. Nil fields are
// left untouched; ClearDefaultWorkflow unbinds the default workflow.
type UpdateProjectTypeRequest struct {
	Name                 *string
	Description          *string
	DefaultWorkflowID    *string
	ClearDefaultWorkflow bool
	IconName             *string
}

// ProjectTypeRegistry binds kinds of work to their default workflow.
type ProjectTypeRegistry struct {
	base
}

// NewProjectTypeRegistry creates a new project type registry service.
func NewProjectTypeRegistry(p persistence.Persistence, opts ...Option) *ProjectTypeRegistry {
	return &ProjectTypeRegistry{base: newBase(p, opts)}
}

func (r *ProjectTypeRegistry) List(ctx context.Context, includeArchived bool) ([]*models.ProjectType, error) {
	projectTypes, err := r.persistence.ProjectTypeRepository().List(ctx, includeArchived)
	if err != nil {
		return nil, r.fail(ctx, "ListProjectTypes", err, "")
	}

	return projectTypes, nil
}

func (r *ProjectTypeRegistry) GetByID(ctx context.Context, id string) (*models.ProjectType, error) {
	projectType, err := r.persistence.ProjectTypeRepository().GetByID(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, "GetProjectType", err, "")
	}

	return projectType, nil
}

func (r *ProjectTypeRegistry) Create(ctx context.Context, req CreateProjectTypeRequest) (*models.ProjectType, error) {
	const op = "CreateProjectType"

	ctx, span := r.startSpan(ctx, "project_type.create")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, badInputError(op, "Project type name is required")
	}

	projectType := &models.ProjectType{
		Name:              name,
		Description:       req.Description,
		DefaultWorkflowID: req.DefaultWorkflowID,
		IconName:          req.IconName,
	}

	err := r.persistence.ProjectTypeRepository().Save(ctx, projectType)
	if err != nil {
		return nil, r.fail(ctx, op, err, msgInvalidDefaultWorkflow)
	}

	span.SetAttributes(attribute.String(otelhelper.ProjectTypeIDKey, projectType.ID))

	return projectType, nil
}

func (r *ProjectTypeRegistry) Update(ctx context.Context, id string, req UpdateProjectTypeRequest) (*models.ProjectType, error) {
	const op = "UpdateProjectType"

	ctx, span := r.startSpan(ctx, "project_type.update", attribute.String(otelhelper.ProjectTypeIDKey, id))
	defer span.End()

	if req.ClearDefaultWorkflow && req.DefaultWorkflowID != nil {
		return nil, badInputError(op, "Cannot set and clear the default workflow at once")
	}

	projectType, err := r.persistence.ProjectTypeRepository().GetByID(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, op, err, "")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, badInputError(op, "Project type name cannot be empty")
		}

		projectType.Name = name
	}

	if req.Description != nil {
		projectType.Description = *req.Description
	}

	if req.IconName != nil {
		projectType.IconName = *req.IconName
	}

	switch {
	case req.ClearDefaultWorkflow:
		projectType.DefaultWorkflowID = nil
	case req.DefaultWorkflowID != nil:
		projectType.DefaultWorkflowID = req.DefaultWorkflowID
	}

	err = r.persistence.ProjectTypeRepository().Save(ctx, projectType)
	if err != nil {
		return nil, r.fail(ctx, op, err, msgInvalidDefaultWorkflow)
	}

	return projectType, nil
}

func (r *ProjectTypeRegistry) Archive(ctx context.Context, id string) (*models.ProjectType, error) {
	const op = "ArchiveProjectType"

	ctx, span := r.startSpan(ctx, "project_type.archive", attribute.String(otelhelper.ProjectTypeIDKey, id))
	defer span.End()

	projectType, err := r.persistence.ProjectTypeRepository().GetByID(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, op, err, "")
	}

	if projectType.IsArchived {
		return projectType, nil
	}

	projectType.IsArchived = true

	err = r.persistence.ProjectTypeRepository().Save(ctx, projectType)
	if err != nil {
		return nil, r.fail(ctx, op, err, "")
	}

	return projectType, nil
}
