package models

import "time"

// ProjectType is a named kind of work (e.g. "Sales Deal") bound to a default workflow.
type ProjectType struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"                          validate:"required,min=1,max=255"`
	Description       string    `json:"description"`
	DefaultWorkflowID *string   `json:"default_workflow_id,omitempty"`
	IconName          string    `json:"icon_name,omitempty"`
	IsArchived        bool      `json:"is_archived"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ProjectRef is the part of a project instance (deal, lead, ...) the engine reasons about.
// Instances are owned by the surrounding application.
type ProjectRef struct {
	ID            string `json:"id"`
	WorkflowID    string `json:"workflow_id"`
	CurrentStepID string `json:"current_step_id"`
}
