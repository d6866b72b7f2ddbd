package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/services"
)

func (h *APIHandlers) GetWorkflowSteps(c fiber.Ctx) error {
	steps, err := h.engine.Steps().GetByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(steps)
}

func (h *APIHandlers) GetWorkflowStep(c fiber.Ctx) error {
	step, err := h.engine.Steps().GetByID(c.Context(), c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) AddWorkflowStep(c fiber.Ctx) error {
	var req AddStepRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	step, err := h.engine.Steps().AddStep(c.Context(), c.Params("id"), services.AddStepRequest{
		StatusID:      req.StatusID,
		StepOrder:     req.StepOrder,
		IsInitialStep: req.IsInitialStep,
		IsFinalStep:   req.IsFinalStep,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateWorkflowStep(c fiber.Ctx) error {
	var req UpdateStepRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	step, err := h.engine.Steps().UpdateStep(c.Context(), c.Params("stepId"), services.UpdateStepRequest{
		StatusID:      req.StatusID,
		StepOrder:     req.StepOrder,
		IsInitialStep: req.IsInitialStep,
		IsFinalStep:   req.IsFinalStep,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) RemoveWorkflowStep(c fiber.Ctx) error {
	result, err := h.engine.Steps().RemoveStep(c.Context(), c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ReorderWorkflowSteps(c fiber.Ctx) error {
	var req ReorderStepsRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	steps, err := h.engine.Steps().ReorderSteps(c.Context(), c.Params("id"), req.StepIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(steps)
}

func (h *APIHandlers) RepairWorkflowSteps(c fiber.Ctx) error {
	steps, changed, err := h.engine.Steps().RepairStepOrder(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"changed": changed,
		"steps":   steps,
	})
}
