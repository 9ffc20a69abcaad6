package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/middleware"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

func actorFromRequest(c *fiber.Ctx) workflow.Actor {
	return workflow.Actor{
		ID:   middleware.ActorID(c),
		Role: middleware.ActorRole(c),
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func parseQueryInt(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid " + name)
	}
	return parsed, nil
}
