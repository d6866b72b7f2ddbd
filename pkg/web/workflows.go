package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/services"
)

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	archived, err := includeArchived(c)
	if err != nil {
		return badRequest(c, "Invalid include_archived parameter")
	}

	workflows, err := h.engine.List(c.Context(), archived)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	detail, err := h.engine.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	workflow, err := h.engine.Create(c.Context(), services.CreateWorkflowRequest{
		Name:        req.Name,
		Description: req.Description,
		UserID:      req.UserID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	workflow, err := h.engine.Update(c.Context(), c.Params("id"), services.UpdateWorkflowRequest{
		Name:        req.Name,
		Description: req.Description,
		UserID:      req.UserID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	var req ArchiveRequest
	if len(c.Body()) > 0 {
		if ok, err := h.bind(c, &req); !ok {
			return err
		}
	}

	workflow, err := h.engine.Archive(c.Context(), c.Params("id"), req.UserID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	_, err := h.engine.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ValidateTransition answers 200 for a legal move and 422 with the diagnostic otherwise.
func (h *APIHandlers) ValidateTransition(c fiber.Ctx) error {
	var req ValidateTransitionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	err := h.engine.ValidateTransition(c.Context(), c.Params("id"), req.CurrentStepID, req.TargetStepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ValidateTransitionResponse{Allowed: true})
}

func (h *APIHandlers) GetInitialStep(c fiber.Ctx) error {
	step, err := h.engine.GetInitialStep(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}
