// Package web provides the HTTP API of the workflow engine.
package web

import "github.com/pipecd-crm/wfm/pkg/models"

// CreateStatusRequest represents the request body for creating a status.
type CreateStatusRequest struct {
	Name  string `json:"name"  validate:"required,min=1,max=255"`
	Color string `json:"color" validate:"omitempty,max=32"`
}

// UpdateStatusRequest represents the request body for updating a status.
// All fields are optional to support partial updates.
type UpdateStatusRequest struct {
	Name  *string `json:"name,omitempty"  validate:"omitempty,min=1,max=255"`
	Color *string `json:"color,omitempty" validate:"omitempty,max=32"`
}

// CreateWorkflowRequest represents the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string `json:"name"        validate:"required,min=1,max=255"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
}

// UpdateWorkflowRequest represents the request body for updating a workflow.
type UpdateWorkflowRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	UserID      string  `json:"user_id"`
}

// ArchiveRequest carries the acting user of an archival.
type ArchiveRequest struct {
	UserID string `json:"user_id"`
}

// AddStepRequest represents the request body for adding a step to a workflow.
type AddStepRequest struct {
	StatusID      string         `json:"status_id"       validate:"required"`
	StepOrder     int            `json:"step_order"      validate:"required,gt=0"`
	IsInitialStep bool           `json:"is_initial_step"`
	IsFinalStep   bool           `json:"is_final_step"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// UpdateStepRequest represents the request body for updating a step. A missing
// metadata key leaves it unchanged; "metadata": null clears it.
type UpdateStepRequest struct {
	StatusID      *string                 `json:"status_id,omitempty"       validate:"omitempty,min=1"`
	StepOrder     *int                    `json:"step_order,omitempty"      validate:"omitempty,gt=0"`
	IsInitialStep *bool                   `json:"is_initial_step,omitempty"`
	IsFinalStep   *bool                   `json:"is_final_step,omitempty"`
	Metadata      models.NullableMetadata `json:"metadata"`
}

// ReorderStepsRequest lists every step of the workflow in the desired order.
type ReorderStepsRequest struct {
	StepIDs []string `json:"step_ids" validate:"required,dive,required"`
}

// AddTransitionRequest represents the request body for connecting two steps.
type AddTransitionRequest struct {
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Name       string `json:"name"         validate:"omitempty,max=255"`
}

// UpdateTransitionRequest represents the request body for renaming a transition.
type UpdateTransitionRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,max=255"`
}

// ValidateTransitionRequest asks whether a move between two steps is legal.
type ValidateTransitionRequest struct {
	CurrentStepID string `json:"current_step_id" validate:"required"`
	TargetStepID  string `json:"target_step_id"  validate:"required"`
}

// ValidateTransitionResponse is returned for legal moves.
type ValidateTransitionResponse struct {
	Allowed bool `json:"allowed"`
}

// StartProjectRequest places a new project at the initial step of a workflow.
type StartProjectRequest struct {
	ProjectID  string `json:"project_id"  validate:"required"`
	WorkflowID string `json:"workflow_id" validate:"required"`
}

// AdvanceProjectRequest moves a project to another step of its workflow.
type AdvanceProjectRequest struct {
	Project      models.ProjectRef `json:"project"`
	TargetStepID string            `json:"target_step_id" validate:"required"`
}

// CreateProjectTypeRequest represents the request body for creating a project type.
type CreateProjectTypeRequest struct {
	Name              string  `json:"name"                          validate:"required,min=1,max=255"`
	Description       string  `json:"description"`
	DefaultWorkflowID *string `json:"default_workflow_id,omitempty" validate:"omitempty,min=1"`
	IconName          string  `json:"icon_name"                     validate:"omitempty,max=64"`
}

// UpdateProjectTypeRequest represents the request body for updating a project type.
type UpdateProjectTypeRequest struct {
	Name                 *string `json:"name,omitempty"                validate:"omitempty,min=1,max=255"`
	Description          *string `json:"description,omitempty"`
	DefaultWorkflowID    *string `json:"default_workflow_id,omitempty" validate:"omitempty,min=1"`
	ClearDefaultWorkflow bool    `json:"clear_default_workflow"`
	IconName             *string `json:"icon_name,omitempty"           validate:"omitempty,max=64"`
}
