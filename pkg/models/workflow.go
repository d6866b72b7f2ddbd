package models

import "time"

// Workflow is a reusable directed graph template of steps and transitions.
// It has no current state of its own; project instances carry that.
type Workflow struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"                         validate:"required,min=1,max=255"`
	Description     string    `json:"description"`
	IsArchived      bool      `json:"is_archived"`
	CreatedByUserID string    `json:"created_by_user_id,omitempty"`
	UpdatedByUserID string    `json:"updated_by_user_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WorkflowDetail is a workflow together with its ordered steps and its transitions.
type WorkflowDetail struct {
	*Workflow

	Steps       []*WorkflowStep       `json:"steps"`
	Transitions []*WorkflowTransition `json:"transitions"`
}
