package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/services"
)

func (h *APIHandlers) GetStatuses(c fiber.Ctx) error {
	archived, err := includeArchived(c)
	if err != nil {
		return badRequest(c, "Invalid include_archived parameter")
	}

	statuses, err := h.statuses.List(c.Context(), archived)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(statuses)
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	status, err := h.statuses.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) CreateStatus(c fiber.Ctx) error {
	var req CreateStatusRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	status, err := h.statuses.Create(c.Context(), req.Name, req.Color)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(status)
}

func (h *APIHandlers) UpdateStatus(c fiber.Ctx) error {
	var req UpdateStatusRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	status, err := h.statuses.Update(c.Context(), c.Params("id"), services.UpdateStatusRequest{
		Name:  req.Name,
		Color: req.Color,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) ArchiveStatus(c fiber.Ctx) error {
	status, err := h.statuses.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}
