package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/dto"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/middleware"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/utils"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

// AuditHandler exports the append-only transition log for an entity.
type AuditHandler struct {
	engine *workflow.Engine
	logger zerolog.Logger
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(engine *workflow.Engine, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		engine: engine,
		logger: logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register attaches the audit endpoints to the router group.
func (h *AuditHandler) Register(router fiber.Router) {
	router.Get("/:entityType/:id", middleware.RequireRole(workflow.RoleAdmin), h.history)
}

func (h *AuditHandler) history(c *fiber.Ctx) error {
	entityType := c.Params("entityType")
	if entityType != models.EntityTypeCourse && entityType != models.EntityTypeEnrollment {
		return utils.SendError(c, fiber.StatusBadRequest, "unknown entity type")
	}

	records, err := h.engine.History(requestContext(c), entityType, c.Params("id"))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load transition history")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "transition history retrieved", dto.NewTransitionResponseSlice(records))
}
