package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/bus"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/service"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/utils"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

// EventHandler serves the live event subscription surface: an SSE stream and
// a websocket, both scoped to the caller's role.
type EventHandler struct {
	dispatcher service.Dispatcher
	logger     zerolog.Logger
	keepAlive  time.Duration
}

// NewEventHandler constructs the handler.
func NewEventHandler(dispatcher service.Dispatcher, keepAlive time.Duration, logger zerolog.Logger) *EventHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	return &EventHandler{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "event_handler").Logger(),
		keepAlive:  keepAlive,
	}
}

// Register binds the event stream routes.
func (h *EventHandler) Register(router fiber.Router) {
	router.Get("/stream", h.stream)

	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("patterns", subscriptionPatterns(actorFromRequest(c), c.Query("topics")))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleWebsocket))
}

// subscriptionPatterns computes the topic patterns a caller may listen on.
// Admin reviewers see the whole workflow; instructors and students see only
// the decisions addressed to them. An optional topics query narrows the set
// but can never widen it.
func subscriptionPatterns(actor workflow.Actor, topicsQuery string) []string {
	var patterns []string
	switch actor.Role {
	case workflow.RoleAdmin:
		patterns = []string{"course.*", "enrollment.*"}
	case workflow.RoleInstructor:
		patterns = []string{fmt.Sprintf("%s.owner:%s", bus.TopicCourseDecided, actor.ID)}
	case workflow.RoleStudent:
		patterns = []string{fmt.Sprintf("%s.student:%s", bus.TopicEnrollmentDecided, actor.ID)}
	default:
		return nil
	}

	requested := strings.Split(topicsQuery, ",")
	narrowed := patterns[:0:0]
	for _, topic := range requested {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		for _, pattern := range patterns {
			if topic == pattern || bus.TopicMatches(pattern, topic) {
				narrowed = append(narrowed, topic)
				break
			}
		}
	}
	if len(narrowed) > 0 {
		return narrowed
	}

	return patterns
}

func (h *EventHandler) stream(c *fiber.Ctx) error {
	actor := actorFromRequest(c)
	patterns := subscriptionPatterns(actor, c.Query("topics"))
	if len(patterns) == 0 {
		return utils.SendError(c, fiber.StatusForbidden, "no event scope for role")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))

	events, cleanup := h.dispatcher.Stream(patterns)
	keepAlive := h.keepAlive

	h.logger.Info().Str("actor_id", actor.ID).Strs("patterns", patterns).Msg("event stream connected")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeSSEEvent(w, event); err != nil {
					return
				}
			case <-ticker.C:
				if err := writeSSEKeepAlive(w); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *EventHandler) handleWebsocket(conn *websocket.Conn) {
	patterns, _ := conn.Locals("patterns").([]string)
	if len(patterns) == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusForbidden, "no event scope for role"))
		_ = conn.Close()
		return
	}

	events, cleanup := h.dispatcher.Stream(patterns)
	defer cleanup()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.keepAlive / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeSSEEvent(w *bufio.Writer, event bus.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Topic, payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeSSEKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
