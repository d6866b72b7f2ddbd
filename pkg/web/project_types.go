package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/services"
)

func (h *APIHandlers) GetProjectTypes(c fiber.Ctx) error {
	archived, err := includeArchived(c)
	if err != nil {
		return badRequest(c, "Invalid include_archived parameter")
	}

	projectTypes, err := h.projectTypes.List(c.Context(), archived)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(projectTypes)
}

func (h *APIHandlers) GetProjectType(c fiber.Ctx) error {
	projectType, err := h.projectTypes.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(projectType)
}

func (h *APIHandlers) CreateProjectType(c fiber.Ctx) error {
	var req CreateProjectTypeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	projectType, err := h.projectTypes.Create(c.Context(), services.CreateProjectTypeRequest{
		Name:              req.Name,
		Description:       req.Description,
		DefaultWorkflowID: req.DefaultWorkflowID,
		IconName:          req.IconName,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(projectType)
}

func (h *APIHandlers) UpdateProjectType(c fiber.Ctx) error {
	var req UpdateProjectTypeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	projectType, err := h.projectTypes.Update(c.Context(), c.Params("id"), services.UpdateProjectTypeRequest{
		Name:                 req.Name,
		Description:          req.Description,
		DefaultWorkflowID:    req.DefaultWorkflowID,
		ClearDefaultWorkflow: req.ClearDefaultWorkflow,
		IconName:             req.IconName,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(projectType)
}

func (h *APIHandlers) ArchiveProjectType(c fiber.Ctx) error {
	projectType, err := h.projectTypes.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(projectType)
}

func (h *APIHandlers) StartProject(c fiber.Ctx) error {
	var req StartProjectRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ref, err := h.engine.StartProject(c.Context(), req.ProjectID, req.WorkflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ref)
}

func (h *APIHandlers) AdvanceProject(c fiber.Ctx) error {
	var req AdvanceProjectRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ref, err := h.engine.AdvanceProject(c.Context(), req.Project, req.TargetStepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ref)
}
