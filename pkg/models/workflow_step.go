package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// WorkflowStep binds a status into a workflow at a given position.
type WorkflowStep struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	StatusID      string         `json:"status_id"`
	StepOrder     int            `json:"step_order"`
	IsInitialStep bool           `json:"is_initial_step"`
	IsFinalStep   bool           `json:"is_final_step"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone returns a deep enough copy of the step for callers that mutate it.
func (s *WorkflowStep) Clone() *WorkflowStep {
	clone := *s
	if s.Metadata != nil {
		clone.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// NullableMetadata distinguishes an absent metadata field from an explicit null.
// Present is false when the field was not supplied; Present with a nil Value clears it.
type NullableMetadata struct {
	Present bool
	Value   map[string]any
}

// SetMetadata returns a NullableMetadata that replaces the stored metadata with value.
func SetMetadata(value map[string]any) NullableMetadata {
	return NullableMetadata{Present: true, Value: value}
}

// ClearMetadata returns a NullableMetadata that removes the stored metadata.
func ClearMetadata() NullableMetadata {
	return NullableMetadata{Present: true}
}

// IsNull reports whether the field was supplied as an explicit null.
func (m NullableMetadata) IsNull() bool {
	return m.Present && m.Value == nil
}

// UnmarshalJSON is only invoked when the key is present, including the null literal.
func (m *NullableMetadata) UnmarshalJSON(data []byte) error {
	m.Present = true

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		m.Value = nil

		return nil
	}

	return json.Unmarshal(data, &m.Value)
}

func (m NullableMetadata) MarshalJSON() ([]byte, error) {
	if m.Value == nil {
		return []byte("null"), nil
	}

	return json.Marshal(m.Value)
}
