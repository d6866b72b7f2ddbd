package web

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pipecd-crm/wfm/pkg/services"
)

type APIHandlers struct {
	engine       *services.Engine
	statuses     *services.StatusCatalog
	projectTypes *services.ProjectTypeRegistry
	validator    *validator.Validate
}

func NewAPIHandlers(
	engine *services.Engine,
	statuses *services.StatusCatalog,
	projectTypes *services.ProjectTypeRegistry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:       engine,
		statuses:     statuses,
		projectTypes: projectTypes,
		validator:    validator,
	}
}

// RegisterRoutes mounts every endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	s := router.Group("/statuses")
	s.Get("/", h.GetStatuses)
	s.Post("/", h.CreateStatus)
	s.Get("/:id", h.GetStatus)
	s.Patch("/:id", h.UpdateStatus)
	s.Post("/:id/archive", h.ArchiveStatus)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/archive", h.ArchiveWorkflow)
	w.Post("/:id/validate-transition", h.ValidateTransition)
	w.Get("/:id/initial-step", h.GetInitialStep)

	// Step endpoints:
	w.Get("/:id/steps", h.GetWorkflowSteps)
	w.Post("/:id/steps", h.AddWorkflowStep)
	w.Put("/:id/steps/order", h.ReorderWorkflowSteps)
	w.Post("/:id/steps/repair", h.RepairWorkflowSteps)
	w.Get("/:id/steps/:stepId/allowed-transitions", h.GetAllowedTransitions)

	st := router.Group("/steps")
	st.Get("/:stepId", h.GetWorkflowStep)
	st.Patch("/:stepId", h.UpdateWorkflowStep)
	st.Delete("/:stepId", h.RemoveWorkflowStep)

	// Transition endpoints:
	w.Get("/:id/transitions", h.GetWorkflowTransitions)
	w.Post("/:id/transitions", h.AddWorkflowTransition)

	tr := router.Group("/transitions")
	tr.Get("/:transitionId", h.GetWorkflowTransition)
	tr.Patch("/:transitionId", h.UpdateWorkflowTransition)
	tr.Delete("/:transitionId", h.RemoveWorkflowTransition)

	p := router.Group("/project-types")
	p.Get("/", h.GetProjectTypes)
	p.Post("/", h.CreateProjectType)
	p.Get("/:id", h.GetProjectType)
	p.Patch("/:id", h.UpdateProjectType)
	p.Post("/:id/archive", h.ArchiveProjectType)

	pr := router.Group("/projects")
	pr.Post("/start", h.StartProject)
	pr.Post("/advance", h.AdvanceProject)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.engine.HealthCheck(c.Context())

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"healthy": healthy,
		"message": message,
	})
}

// bind decodes and validates the JSON body into req, writing a 400 on failure.
// The returned bool is false when the response has already been written.
func (h *APIHandlers) bind(c fiber.Ctx, req any) (bool, error) {
	if err := c.Bind().JSON(req); err != nil {
		return false, badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return false, badRequest(c, "Validation failed: "+err.Error())
	}

	return true, nil
}

func includeArchived(c fiber.Ctx) (bool, error) {
	raw := c.Query("include_archived")
	if raw == "" {
		return false, nil
	}

	return strconv.ParseBool(raw)
}
