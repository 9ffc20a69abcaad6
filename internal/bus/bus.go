package bus

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Workflow event topics. Role-scoped routes are derived from these by
// appending a recipient segment, e.g. "course.decided.owner:42".
const (
	TopicCourseSubmitted     = "course.submitted"
	TopicCourseDecided       = "course.decided"
	TopicEnrollmentRequested = "enrollment.requested"
	TopicEnrollmentDecided   = "enrollment.decided"
)

// Event is an immutable fact describing a completed transition. Payload is
// the post-transition entity snapshot, so consumers never need to re-query.
type Event struct {
	Topic      string          `json:"topic"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Sequence   int64           `json:"sequence"`
	Payload    json.RawMessage `json:"payload"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

func (e Event) entityKey() string {
	return e.EntityType + "/" + e.EntityID
}

// Handler consumes events delivered to a subscription. Delivery is
// at-least-once; handlers must be idempotent with respect to
// (EntityType, EntityID, Sequence).
type Handler func(Event)

// Subscription is the handle returned by Subscribe and accepted by
// Unsubscribe. Each subscription tracks the highest sequence it has
// delivered per entity, so a stale event that lost a publish race is
// suppressed only for subscribers that already saw something newer.
type Subscription struct {
	pattern string
	handler Handler
	logger  zerolog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []Event
	closed    bool
	delivered map[string]int64
}

// Bus is an in-process publish/subscribe broker. Events for the same
// (entity type, entity id) reach a given subscriber in non-decreasing
// sequence order; there is no ordering guarantee across entities. Each
// subscriber drains its own queue on a dedicated goroutine, so a slow
// handler never stalls publishers or other subscribers.
type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	lastSeqs map[string]int64
	logger   zerolog.Logger
}

// New constructs an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		lastSeqs: make(map[string]int64),
		logger:   logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for every event whose topic matches the
// pattern. Patterns are either an exact topic or a wildcard suffix such as
// "course.*", which matches "course.decided" and any deeper segment.
func (b *Bus) Subscribe(pattern string, handler Handler) *Subscription {
	sub := &Subscription{
		pattern:   strings.TrimSpace(pattern),
		handler:   handler,
		logger:    b.logger,
		delivered: make(map[string]int64),
	}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.run()

	return sub
}

// Unsubscribe detaches the subscription and stops its dispatch loop. Events
// already queued are discarded.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()

	sub.close()
}

// Publish fans the event out to every matching subscription. When the event
// carries no sequence the bus stamps the next per-entity value. The fan-out
// happens under the bus lock so racing publishers cannot interleave their
// enqueues; ordering itself is enforced per subscription at delivery time,
// so a late event for one topic is never withheld from subscribers whose
// own topics saw nothing newer.
func (b *Bus) Publish(event Event) {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	key := event.entityKey()

	b.mu.Lock()
	last := b.lastSeqs[key]
	if event.Sequence == 0 {
		event.Sequence = last + 1
	}
	if event.Sequence > last {
		b.lastSeqs[key] = event.Sequence
	}

	for sub := range b.subs {
		if TopicMatches(sub.pattern, event.Topic) {
			sub.enqueue(event)
		}
	}
	b.mu.Unlock()
}

// TopicMatches reports whether a concrete topic matches a subscription
// pattern. A trailing ".*" matches the bare prefix and any suffix segments.
func TopicMatches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+".")
	}
	return false
}

func (s *Subscription) enqueue(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending = append(s.pending, event)
	s.cond.Signal()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.pending = nil
	s.cond.Signal()
}

func (s *Subscription) run() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		event := s.pending[0]
		s.pending = s.pending[1:]

		// An event below this subscription's high-water mark for the
		// entity lost a publish race after a newer snapshot was already
		// delivered here; replaying it would break per-entity ordering.
		key := event.entityKey()
		if last := s.delivered[key]; event.Sequence < last {
			s.mu.Unlock()
			s.logger.Debug().
				Str("topic", event.Topic).
				Str("entity_id", event.EntityID).
				Int64("sequence", event.Sequence).
				Int64("delivered_sequence", last).
				Msg("stale event suppressed")
			continue
		}
		s.delivered[key] = event.Sequence
		s.mu.Unlock()

		s.handler(event)
	}
}
