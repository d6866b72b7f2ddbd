package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/pipecd-crm/wfm/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

var kindStatus = map[services.Kind]int{
	services.KindNotFound:          fiber.StatusNotFound,
	services.KindConflict:          fiber.StatusConflict,
	services.KindBadInput:          fiber.StatusBadRequest,
	services.KindReference:         fiber.StatusUnprocessableEntity,
	services.KindBlockedDeletion:   fiber.StatusConflict,
	services.KindTransitionIllegal: fiber.StatusUnprocessableEntity,
}

// handleServiceError writes the problem document matching the kind of a service error.
func handleServiceError(c fiber.Ctx, err error) error {
	kind := services.KindOf(err)

	status, ok := kindStatus[kind]
	if !ok {
		// Internal errors are logged by the services; the cause is not exposed.
		problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType(string(services.KindInternal)).
			WithDetail("internal error")

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(string(kind)).
		WithDetail(services.MessageOf(err))

	return c.Status(status).JSON(problem)
}
