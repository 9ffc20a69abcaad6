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

// CourseHandler wires the course workflow HTTP routes.
type CourseHandler struct {
	service service.CourseService
	logger  zerolog.Logger
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(service service.CourseService, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		service: service,
		logger:  logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register attaches course endpoints to the router group.
func (h *CourseHandler) Register(router fiber.Router) {
	router.Get("/pending", middleware.RequireRole(workflow.RoleAdmin), h.listPending)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.submit)
	router.Post("/:id/decision", middleware.RequireRole(workflow.RoleAdmin), h.decide)
	router.Post("/:id/withdraw", h.withdraw)
}

func (h *CourseHandler) submit(c *fiber.Ctx) error {
	var payload dto.CourseSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	course, err := h.service.Submit(requestContext(c), payload, actorFromRequest(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course submitted for review", course)
}

func (h *CourseHandler) decide(c *fiber.Ctx) error {
	courseID := c.Params("id")

	var payload dto.DecisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	course, err := h.service.Decide(requestContext(c), courseID, payload, actorFromRequest(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "course decision recorded", course)
}

func (h *CourseHandler) withdraw(c *fiber.Ctx) error {
	course, err := h.service.Withdraw(requestContext(c), c.Params("id"), actorFromRequest(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "course withdrawn", course)
}

func (h *CourseHandler) get(c *fiber.Ctx) error {
	course, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "course not found")
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "course retrieved", course)
}

// list returns the caller's own courses. Admins may filter any owner via the
// owner_id query parameter.
func (h *CourseHandler) list(c *fiber.Ctx) error {
	actor := actorFromRequest(c)

	ownerID := actor.ID
	if requested := c.Query("owner_id"); requested != "" && actor.Role == workflow.RoleAdmin {
		ownerID = requested
	}

	courses, err := h.service.ListByOwner(requestContext(c), ownerID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "courses retrieved", courses)
}

func (h *CourseHandler) listPending(c *fiber.Ctx) error {
	courses, err := h.service.ListPending(requestContext(c))
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "pending courses retrieved", courses)
}

func (h *CourseHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, service.ErrCourseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "course not found")
	case errors.Is(err, workflow.ErrNotAuthorized):
		return utils.SendError(c, fiber.StatusForbidden, "not authorized for this action")
	case errors.Is(err, workflow.ErrInvalidTransition):
		return utils.SendError(c, fiber.StatusConflict, "action not allowed in current state")
	case errors.Is(err, repository.ErrVersionConflict):
		return utils.SendError(c, fiber.StatusConflict, "course was modified concurrently, retry")
	case errors.Is(err, service.ErrCourseContentEmpty):
		return utils.SendError(c, fiber.StatusBadRequest, "course title or description empty after sanitization")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *CourseHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Str("correlation_id", middleware.GetCorrelationID(c)).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
