package models

import "time"

// WorkflowTransition is a directed edge between two steps of the same workflow.
type WorkflowTransition struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	FromStepID string    `json:"from_step_id"`
	ToStepID   string    `json:"to_step_id"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName is the transition name, or "Unnamed" when none was given.
func (t *WorkflowTransition) DisplayName() string {
	if t.Name == "" {
		return "Unnamed"
	}

	return t.Name
}
