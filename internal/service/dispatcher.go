package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/bus"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/observability"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

const streamBufferSize = 16

// Dispatcher bridges engine results to the event bus. It owns delivery
// semantics: role-scoped fan-out, bounded retry of the cross-node relay, and
// persistence of targeted notifications. A dispatch failure never rolls back
// the underlying transition; the authoritative state change has already
// committed by the time Dispatch runs.
type Dispatcher interface {
	Dispatch(ctx context.Context, result workflow.Result)
	Stream(patterns []string) (<-chan bus.Event, func())
	Start(ctx context.Context)
}

// DispatcherConfig tunes retry behaviour for the cross-node relay.
type DispatcherConfig struct {
	ChannelBase  string
	MaxAttempts  int
	RetryBackoff time.Duration
}

type dispatcher struct {
	bus           *bus.Bus
	notifications repository.NotificationRepository
	redis         *redis.Client
	redisChannel  string
	nats          *nats.Conn
	natsSubject   string
	maxAttempts   int
	backoff       time.Duration
	logger        zerolog.Logger
	nodeID        string
}

// relayEnvelope wraps an event for the cross-node transports so a node can
// ignore its own publications when they come back around.
type relayEnvelope struct {
	Source string    `json:"source"`
	Event  bus.Event `json:"event"`
	SentAt time.Time `json:"sent_at"`
}

// NewDispatcher constructs the notification dispatcher. The Redis client and
// NATS connection are optional; when nil the dispatcher runs single-node.
func NewDispatcher(eventBus *bus.Bus, notifications repository.NotificationRepository, redisClient *redis.Client, natsConn *nats.Conn, cfg DispatcherConfig, logger zerolog.Logger) Dispatcher {
	channel := ""
	subject := ""
	if cfg.ChannelBase != "" {
		channel = cfg.ChannelBase + ":events"
		subject = strings.ReplaceAll(cfg.ChannelBase, ":", ".") + ".events"
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	return &dispatcher{
		bus:           eventBus,
		notifications: notifications,
		redis:         redisClient,
		redisChannel:  channel,
		nats:          natsConn,
		natsSubject:   subject,
		maxAttempts:   maxAttempts,
		backoff:       backoff,
		logger:        logger.With().Str("component", "dispatcher").Logger(),
		nodeID:        uuid.NewString(),
	}
}

func (d *dispatcher) Start(ctx context.Context) {
	if d.redis != nil && d.redisChannel != "" {
		go d.consumeRedis(ctx)
	}
	if d.nats != nil && d.natsSubject != "" {
		go d.consumeNATS(ctx)
	}
}

// Dispatch publishes the result's event on every route it fans out to, then
// relays it to the other nodes and persists targeted notifications.
func (d *dispatcher) Dispatch(ctx context.Context, result workflow.Result) {
	event := result.Event
	if event.Topic == "" {
		return
	}

	d.publishLocal(event)
	d.relay(ctx, event)
	d.persist(ctx, event)
}

// Stream returns a merged channel of every event matching any of the given
// patterns, plus a cleanup function. A slow consumer loses events once its
// buffer fills; the persisted notification row remains as a catch-up path.
func (d *dispatcher) Stream(patterns []string) (<-chan bus.Event, func()) {
	out := make(chan bus.Event, streamBufferSize)

	// Unsubscribe stops new deliveries but a handler may still be mid-send,
	// so sends and the close are serialized through this mutex.
	var mu sync.Mutex
	closed := false

	subs := make([]*bus.Subscription, 0, len(patterns))
	for _, pattern := range patterns {
		pattern := strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		sub := d.bus.Subscribe(pattern, func(event bus.Event) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case out <- event:
			default:
				d.logger.Debug().Str("topic", event.Topic).Msg("stream consumer lagging, event dropped")
			}
		})
		subs = append(subs, sub)
	}

	observability.StreamClients().Inc()

	cleanup := func() {
		for _, sub := range subs {
			d.bus.Unsubscribe(sub)
		}
		mu.Lock()
		if !closed {
			closed = true
			close(out)
		}
		mu.Unlock()
		observability.StreamClients().Dec()
	}

	return out, cleanup
}

func (d *dispatcher) publishLocal(event bus.Event) {
	for _, topic := range routesFor(event) {
		routed := event
		routed.Topic = topic
		d.bus.Publish(routed)
		observability.EventsPublished().WithLabelValues(topic).Inc()
	}
}

// routesFor computes the fan-out topics for an event from the event alone;
// the payload snapshot is self-sufficient, so no store lookup happens here.
func routesFor(event bus.Event) []string {
	routes := []string{event.Topic}

	switch event.Topic {
	case bus.TopicCourseDecided:
		var course models.Course
		if err := json.Unmarshal(event.Payload, &course); err == nil && course.OwnerID != "" {
			routes = append(routes, fmt.Sprintf("%s.owner:%s", event.Topic, course.OwnerID))
		}
	case bus.TopicEnrollmentDecided:
		var enrollment models.Enrollment
		if err := json.Unmarshal(event.Payload, &enrollment); err == nil && enrollment.StudentID != "" {
			routes = append(routes, fmt.Sprintf("%s.student:%s", event.Topic, enrollment.StudentID))
		}
	}

	return routes
}

// relay forwards the event to the cross-node transports with bounded
// backoff. After the retry budget is spent the event is logged and dropped;
// observers on other nodes catch up through the persisted notifications.
func (d *dispatcher) relay(ctx context.Context, event bus.Event) {
	if (d.redis == nil || d.redisChannel == "") && (d.nats == nil || d.natsSubject == "") {
		return
	}

	envelope := relayEnvelope{
		Source: d.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to encode relay envelope")
		return
	}

	backoff := d.backoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = d.publishRemote(ctx, payload); err == nil {
			return
		}

		observability.DeliveryRetries().WithLabelValues(event.Topic).Inc()
		d.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("topic", event.Topic).
			Msg("event relay failed")

		if attempt == d.maxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			observability.EventsDropped().WithLabelValues(event.Topic).Inc()
			return
		}
		backoff *= 2
	}

	observability.EventsDropped().WithLabelValues(event.Topic).Inc()
	d.logger.Error().
		Str("topic", event.Topic).
		Str("entity_id", event.EntityID).
		Int64("sequence", event.Sequence).
		Msg("event dropped after retry budget exhausted")
}

func (d *dispatcher) publishRemote(ctx context.Context, payload []byte) error {
	if d.redis != nil && d.redisChannel != "" {
		if err := d.redis.Publish(ctx, d.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if d.nats != nil && d.natsSubject != "" {
		if err := d.nats.Publish(d.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// persist stores a notification row for the specific recipient of a decided
// event, so a dashboard that was closed when the event fired still sees it.
// Queue events (submitted/requested) target the admin role as a whole and
// are served by the pending-list endpoints instead.
func (d *dispatcher) persist(ctx context.Context, event bus.Event) {
	if d.notifications == nil {
		return
	}

	var (
		userID  string
		message string
	)

	switch event.Topic {
	case bus.TopicCourseDecided:
		var course models.Course
		if err := json.Unmarshal(event.Payload, &course); err != nil {
			return
		}
		userID = course.OwnerID
		message = fmt.Sprintf("Your course %q is now %s", course.Title, course.State)
	case bus.TopicEnrollmentDecided:
		var enrollment models.Enrollment
		if err := json.Unmarshal(event.Payload, &enrollment); err != nil {
			return
		}
		userID = enrollment.StudentID
		message = fmt.Sprintf("Your enrollment request was %s", enrollment.State)
	default:
		return
	}

	if userID == "" {
		return
	}

	notification := models.Notification{
		UserID:  userID,
		Topic:   event.Topic,
		Message: message,
	}
	if err := d.notifications.Create(ctx, &notification); err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist notification")
	}
}

func (d *dispatcher) consumeRedis(ctx context.Context) {
	pubsub := d.redis.Subscribe(ctx, d.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		d.handleRelay([]byte(msg.Payload))
	}
}

func (d *dispatcher) consumeNATS(ctx context.Context) {
	sub, err := d.nats.QueueSubscribe(d.natsSubject, "workflow-events", func(msg *nats.Msg) {
		d.handleRelay(msg.Data)
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to drain nats event subscription")
		}
	}()
}

func (d *dispatcher) handleRelay(payload []byte) {
	var envelope relayEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		d.logger.Warn().Err(err).Msg("invalid relay envelope")
		return
	}

	if envelope.Source == d.nodeID {
		return
	}

	d.publishLocal(envelope.Event)
}
