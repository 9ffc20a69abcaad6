package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/dto"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/middleware"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/service"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/utils"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

// EnrollmentHandler wires the enrollment workflow HTTP routes.
type EnrollmentHandler struct {
	service service.EnrollmentService
	logger  zerolog.Logger
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(service service.EnrollmentService, logger zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		service: service,
		logger:  logger.With().Str("component", "enrollment_handler").Logger(),
	}
}

// Register attaches enrollment endpoints to the router group.
func (h *EnrollmentHandler) Register(router fiber.Router) {
	router.Get("/pending", middleware.RequireRole(workflow.RoleAdmin), h.listPending)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.request)
	router.Post("/:id/decision", middleware.RequireRole(workflow.RoleAdmin), h.decide)
}

func (h *EnrollmentHandler) request(c *fiber.Ctx) error {
	var payload dto.EnrollmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	enrollment, err := h.service.Request(requestContext(c), payload, actorFromRequest(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "enrollment requested", enrollment)
}

func (h *EnrollmentHandler) decide(c *fiber.Ctx) error {
	enrollmentID := c.Params("id")

	var payload dto.DecisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	enrollment, err := h.service.Decide(requestContext(c), enrollmentID, payload, actorFromRequest(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "enrollment decision recorded", enrollment)
}

func (h *EnrollmentHandler) get(c *fiber.Ctx) error {
	enrollment, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrEnrollmentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "enrollment not found")
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "enrollment retrieved", enrollment)
}

// list returns the caller's own enrollments. Admins may inspect any student
// via the student_id query parameter.
func (h *EnrollmentHandler) list(c *fiber.Ctx) error {
	actor := actorFromRequest(c)

	studentID := actor.ID
	if requested := c.Query("student_id"); requested != "" && actor.Role == workflow.RoleAdmin {
		studentID = requested
	}

	enrollments, err := h.service.ListByStudent(requestContext(c), studentID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "enrollments retrieved", enrollments)
}

func (h *EnrollmentHandler) listPending(c *fiber.Ctx) error {
	enrollments, err := h.service.ListPending(requestContext(c))
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "pending enrollments retrieved", enrollments)
}

func (h *EnrollmentHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, service.ErrEnrollmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "enrollment or course not found")
	case errors.Is(err, workflow.ErrNotAuthorized):
		return utils.SendError(c, fiber.StatusForbidden, "not authorized for this action")
	case errors.Is(err, workflow.ErrDuplicateRequest):
		return utils.SendError(c, fiber.StatusConflict, "enrollment already requested")
	case errors.Is(err, workflow.ErrCourseNotActive):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "course unavailable")
	case errors.Is(err, workflow.ErrInvalidTransition):
		return utils.SendError(c, fiber.StatusConflict, "action not allowed in current state")
	case errors.Is(err, repository.ErrVersionConflict):
		return utils.SendError(c, fiber.StatusConflict, "enrollment was modified concurrently, retry")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *EnrollmentHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Str("correlation_id", middleware.GetCorrelationID(c)).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
