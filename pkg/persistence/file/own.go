package file

import (
	"strings"

	"github.com/pipecd-crm/wfm/pkg/models"
)

// The own* helpers copy a record with fresh backing storage for every string, so
// nothing in the state aliases a caller buffer such as an HTTP path parameter.

func ownStatus(status *models.Status) *models.Status {
	copied := *status
	copied.ID = strings.Clone(status.ID)
	copied.Name = strings.Clone(status.Name)
	copied.Color = strings.Clone(status.Color)

	return &copied
}

func ownWorkflow(workflow *models.Workflow) *models.Workflow {
	copied := *workflow
	copied.ID = strings.Clone(workflow.ID)
	copied.Name = strings.Clone(workflow.Name)
	copied.Description = strings.Clone(workflow.Description)
	copied.CreatedByUserID = strings.Clone(workflow.CreatedByUserID)
	copied.UpdatedByUserID = strings.Clone(workflow.UpdatedByUserID)

	return &copied
}

func ownStep(step *models.WorkflowStep) *models.WorkflowStep {
	copied := step.Clone()
	copied.ID = strings.Clone(step.ID)
	copied.WorkflowID = strings.Clone(step.WorkflowID)
	copied.StatusID = strings.Clone(step.StatusID)

	return copied
}

func ownTransition(transition *models.WorkflowTransition) *models.WorkflowTransition {
	copied := *transition
	copied.ID = strings.Clone(transition.ID)
	copied.WorkflowID = strings.Clone(transition.WorkflowID)
	copied.FromStepID = strings.Clone(transition.FromStepID)
	copied.ToStepID = strings.Clone(transition.ToStepID)
	copied.Name = strings.Clone(transition.Name)

	return &copied
}

func ownProjectType(projectType *models.ProjectType) *models.ProjectType {
	copied := *projectType
	copied.ID = strings.Clone(projectType.ID)
	copied.Name = strings.Clone(projectType.Name)
	copied.Description = strings.Clone(projectType.Description)
	copied.IconName = strings.Clone(projectType.IconName)

	if projectType.DefaultWorkflowID != nil {
		id := strings.Clone(*projectType.DefaultWorkflowID)
		copied.DefaultWorkflowID = &id
	}

	return &copied
}
