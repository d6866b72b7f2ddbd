// Package events defines the change notifications emitted after workflow definitions are mutated.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/pipecd-crm/wfm/pkg/models"
)

type EventType string

// Topic carries every workflow definition event.
const Topic = "wfm.workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowCreatedEvent  EventType = "workflow.created"
	WorkflowUpdatedEvent  EventType = "workflow.updated"
	WorkflowArchivedEvent EventType = "workflow.archived"
	WorkflowDeletedEvent  EventType = "workflow.deleted"

	StepAddedEvent      EventType = "workflow.step.added"
	StepUpdatedEvent    EventType = "workflow.step.updated"
	StepRemovedEvent    EventType = "workflow.step.removed"
	StepsReorderedEvent EventType = "workflow.steps.reordered"

	TransitionAddedEvent   EventType = "workflow.transition.added"
	TransitionUpdatedEvent EventType = "workflow.transition.updated"
	TransitionRemovedEvent EventType = "workflow.transition.removed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

func (b BaseEvent) GetType() EventType {
	return b.Type
}

// WorkflowChanged is emitted for created, updated, archived and deleted workflows.
// Workflow is nil for deletions.
type WorkflowChanged struct {
	BaseEvent

	Workflow *models.Workflow `json:"workflow,omitempty"`
}

func NewWorkflowChanged(eventType EventType, workflowID string, workflow *models.Workflow) WorkflowChanged {
	return WorkflowChanged{
		BaseEvent: NewBaseEvent(eventType, workflowID),
		Workflow:  workflow,
	}
}

// StepChanged is emitted for added, updated and removed steps. Step is nil for removals.
type StepChanged struct {
	BaseEvent

	StepID string               `json:"step_id"`
	Step   *models.WorkflowStep `json:"step,omitempty"`
}

func NewStepChanged(eventType EventType, workflowID, stepID string, step *models.WorkflowStep) StepChanged {
	return StepChanged{
		BaseEvent: NewBaseEvent(eventType, workflowID),
		StepID:    stepID,
		Step:      step,
	}
}

// StepsReordered carries the committed order of step IDs.
type StepsReordered struct {
	BaseEvent

	StepIDs []string `json:"step_ids"`
}

func NewStepsReordered(workflowID string, stepIDs []string) StepsReordered {
	return StepsReordered{
		BaseEvent: NewBaseEvent(StepsReorderedEvent, workflowID),
		StepIDs:   stepIDs,
	}
}

// TransitionChanged is emitted for added, updated and removed transitions.
type TransitionChanged struct {
	BaseEvent

	TransitionID string                     `json:"transition_id"`
	Transition   *models.WorkflowTransition `json:"transition,omitempty"`
}

func NewTransitionChanged(eventType EventType, workflowID, transitionID string, transition *models.WorkflowTransition) TransitionChanged {
	return TransitionChanged{
		BaseEvent:    NewBaseEvent(eventType, workflowID),
		TransitionID: transitionID,
		Transition:   transition,
	}
}

// NewEmpty returns a zero value to decode a payload of the given type into,
// or nil when the type is unknown.
func NewEmpty(eventType EventType) any {
	switch eventType {
	case WorkflowCreatedEvent, WorkflowUpdatedEvent, WorkflowArchivedEvent, WorkflowDeletedEvent:
		return &WorkflowChanged{}
	case StepAddedEvent, StepUpdatedEvent, StepRemovedEvent:
		return &StepChanged{}
	case StepsReorderedEvent:
		return &StepsReordered{}
	case TransitionAddedEvent, TransitionUpdatedEvent, TransitionRemovedEvent:
		return &TransitionChanged{}
	default:
		return nil
	}
}
