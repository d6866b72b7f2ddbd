package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/services"
)

func (h *APIHandlers) GetWorkflowTransitions(c fiber.Ctx) error {
	transitions, err := h.engine.Transitions().GetByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(transitions)
}

func (h *APIHandlers) GetWorkflowTransition(c fiber.Ctx) error {
	transition, err := h.engine.Transitions().GetByID(c.Context(), c.Params("transitionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(transition)
}

func (h *APIHandlers) GetAllowedTransitions(c fiber.Ctx) error {
	transitions, err := h.engine.GetAllowedTransitions(c.Context(), c.Params("id"), c.Params("stepId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(transitions)
}

func (h *APIHandlers) AddWorkflowTransition(c fiber.Ctx) error {
	var req AddTransitionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	transition, err := h.engine.Transitions().AddTransition(c.Context(), c.Params("id"), services.AddTransitionRequest{
		FromStepID: req.FromStepID,
		ToStepID:   req.ToStepID,
		Name:       req.Name,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(transition)
}

func (h *APIHandlers) UpdateWorkflowTransition(c fiber.Ctx) error {
	var req UpdateTransitionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	transition, err := h.engine.Transitions().UpdateTransition(c.Context(), c.Params("transitionId"), services.UpdateTransitionRequest{
		Name: req.Name,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(transition)
}

func (h *APIHandlers) RemoveWorkflowTransition(c fiber.Ctx) error {
	result, err := h.engine.Transitions().RemoveTransition(c.Context(), c.Params("transitionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}
