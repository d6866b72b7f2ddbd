// Package models defines the entities of the workflow definition and transition engine.
package models

import "time"

// Status is a named pipeline state (e.g. "Qualified", "Won") that workflow steps point at.
type Status struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"        validate:"required,min=1,max=255"`
	Color      string    `json:"color"`
	IsArchived bool      `json:"is_archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
