package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/bus"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/observability"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
)

// Engine error taxonomy. Only repository.ErrVersionConflict, passed through
// unchanged, is retryable.
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidTransition indicates the action is not a legal edge out of
	// the entity's current state. Replaying an action the entity is already
	// past returns this; callers should read it as "someone already acted".
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotAuthorized indicates the actor lacks the role (or ownership)
	// required for the action.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrDuplicateRequest indicates a non-rejected enrollment already exists
	// for the (course, student) pair.
	ErrDuplicateRequest = errors.New("enrollment already requested")
	// ErrCourseNotActive indicates an enrollment was requested against a
	// course that is not accepting students.
	ErrCourseNotActive = errors.New("course not active")
)

// Actor identifies the caller of a transition, as resolved by the identity
// layer.
type Actor struct {
	ID   string
	Role string
}

// Result carries the post-transition entity snapshot and the domain event
// constructed for it. Publishing the event is the dispatcher's job, not the
// engine's.
type Result struct {
	Course     *models.Course
	Enrollment *models.Enrollment
	Event      bus.Event
}

// Engine validates and applies state transitions. It is the only writer of
// Course and Enrollment state; all mutation goes through the repositories'
// compare-and-swap, so concurrent writers race and the loser sees a version
// conflict instead of clobbering state.
type Engine struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	transitions repository.TransitionRepository
	policy      RolePolicy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEngine constructs the transition engine.
func NewEngine(
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	transitions repository.TransitionRepository,
	policy RolePolicy,
	logger zerolog.Logger,
) *Engine {
	if policy == nil {
		policy = DefaultRolePolicy()
	}

	return &Engine{
		courses:     courses,
		enrollments: enrollments,
		transitions: transitions,
		policy:      policy,
		logger:      logger.With().Str("component", "workflow_engine").Logger(),
		tracer:      otel.Tracer("github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"),
		now:         time.Now,
	}
}

// SubmitCourse creates a course in draft for the actor and immediately
// applies the submit edge, returning it in pending review.
func (e *Engine) SubmitCourse(ctx context.Context, course models.Course, actor Actor) (Result, error) {
	if !e.policy.Allows(ActionSubmit, actor.Role) {
		return Result{}, ErrNotAuthorized
	}

	now := e.now().UTC()
	course.ID = uuid.NewString()
	course.OwnerID = actor.ID
	course.State = models.CourseStateDraft
	course.SubmittedAt = now
	course.DecidedAt = nil
	course.DecidedBy = nil
	course.Version = 1

	if err := e.courses.Create(ctx, &course); err != nil {
		return Result{}, err
	}

	return e.ApplyCourse(ctx, course.ID, ActionSubmit, actor)
}

// ApplyCourse validates and applies one course transition.
func (e *Engine) ApplyCourse(ctx context.Context, courseID, action string, actor Actor) (Result, error) {
	spanCtx, span := e.tracer.Start(ctx, "workflow.apply_course", trace.WithAttributes(
		attribute.String("workflow.entity_id", courseID),
		attribute.String("workflow.action", action),
	))
	defer span.End()

	result, err := e.applyCourse(spanCtx, courseID, action, actor)
	e.record(models.EntityTypeCourse, action, err)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (e *Engine) applyCourse(ctx context.Context, courseID, action string, actor Actor) (Result, error) {
	if !e.policy.Allows(action, actor.Role) {
		return Result{}, ErrNotAuthorized
	}

	course, err := e.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}

	if (action == ActionSubmit || action == ActionWithdraw) && course.OwnerID != actor.ID {
		return Result{}, ErrNotAuthorized
	}

	next, ok := courseMachine.next(course.State, action)
	if !ok {
		return Result{}, fmt.Errorf("%w: cannot %s course in state %s", ErrInvalidTransition, action, course.State)
	}

	from := course.State
	now := e.now().UTC()
	course.State = next
	if course.IsTerminal() {
		actorID := actor.ID
		course.DecidedAt = &now
		course.DecidedBy = &actorID
	}

	if err := e.courses.UpdateCAS(ctx, &course, course.Version); err != nil {
		return Result{}, err
	}

	if err := e.appendTransition(ctx, models.EntityTypeCourse, course.ID, from, next, actor.ID); err != nil {
		return Result{}, err
	}

	topic := bus.TopicCourseDecided
	if action == ActionSubmit {
		topic = bus.TopicCourseSubmitted
	}

	event, err := newEvent(topic, models.EntityTypeCourse, course.ID, course.Version, course, now)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info().
		Str("course_id", course.ID).
		Str("action", action).
		Str("from", from).
		Str("to", next).
		Str("actor_id", actor.ID).
		Msg("course transition applied")

	return Result{Course: &course, Event: event}, nil
}

// RequestEnrollment creates a pending enrollment for the actor in the given
// course. Preconditions: the course exists and is active, and no pending or
// approved enrollment exists for the same (course, student) pair.
func (e *Engine) RequestEnrollment(ctx context.Context, courseID string, actor Actor) (Result, error) {
	spanCtx, span := e.tracer.Start(ctx, "workflow.request_enrollment", trace.WithAttributes(
		attribute.String("workflow.course_id", courseID),
	))
	defer span.End()

	result, err := e.requestEnrollment(spanCtx, courseID, actor)
	e.record(models.EntityTypeEnrollment, ActionRequest, err)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (e *Engine) requestEnrollment(ctx context.Context, courseID string, actor Actor) (Result, error) {
	if !e.policy.Allows(ActionRequest, actor.Role) {
		return Result{}, ErrNotAuthorized
	}

	course, err := e.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if course.State != models.CourseStateActive {
		return Result{}, ErrCourseNotActive
	}

	if _, err := e.enrollments.FindNonRejected(ctx, courseID, actor.ID); err == nil {
		return Result{}, ErrDuplicateRequest
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, err
	}

	now := e.now().UTC()
	enrollment := models.Enrollment{
		ID:          uuid.NewString(),
		CourseID:    courseID,
		StudentID:   actor.ID,
		State:       models.EnrollmentStatePending,
		RequestedAt: now,
		Version:     1,
	}

	if err := e.enrollments.Create(ctx, &enrollment); err != nil {
		// The read above is not atomic with the insert; the partial
		// unique index on (course_id, student_id) catches requests that
		// raced past it.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Result{}, ErrDuplicateRequest
		}
		return Result{}, err
	}

	if err := e.appendTransition(ctx, models.EntityTypeEnrollment, enrollment.ID, "", enrollment.State, actor.ID); err != nil {
		return Result{}, err
	}

	event, err := newEvent(bus.TopicEnrollmentRequested, models.EntityTypeEnrollment, enrollment.ID, enrollment.Version, enrollment, now)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info().
		Str("enrollment_id", enrollment.ID).
		Str("course_id", courseID).
		Str("student_id", actor.ID).
		Msg("enrollment requested")

	return Result{Enrollment: &enrollment, Event: event}, nil
}

// ApplyEnrollment validates and applies one enrollment transition.
func (e *Engine) ApplyEnrollment(ctx context.Context, enrollmentID, action string, actor Actor) (Result, error) {
	spanCtx, span := e.tracer.Start(ctx, "workflow.apply_enrollment", trace.WithAttributes(
		attribute.String("workflow.entity_id", enrollmentID),
		attribute.String("workflow.action", action),
	))
	defer span.End()

	result, err := e.applyEnrollment(spanCtx, enrollmentID, action, actor)
	e.record(models.EntityTypeEnrollment, action, err)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

func (e *Engine) applyEnrollment(ctx context.Context, enrollmentID, action string, actor Actor) (Result, error) {
	if !e.policy.Allows(action, actor.Role) {
		return Result{}, ErrNotAuthorized
	}

	enrollment, err := e.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}

	next, ok := enrollmentMachine.next(enrollment.State, action)
	if !ok {
		return Result{}, fmt.Errorf("%w: cannot %s enrollment in state %s", ErrInvalidTransition, action, enrollment.State)
	}

	from := enrollment.State
	now := e.now().UTC()
	actorID := actor.ID
	enrollment.State = next
	enrollment.DecidedAt = &now
	enrollment.DecidedBy = &actorID

	if err := e.enrollments.UpdateCAS(ctx, &enrollment, enrollment.Version); err != nil {
		return Result{}, err
	}

	if err := e.appendTransition(ctx, models.EntityTypeEnrollment, enrollment.ID, from, next, actor.ID); err != nil {
		return Result{}, err
	}

	event, err := newEvent(bus.TopicEnrollmentDecided, models.EntityTypeEnrollment, enrollment.ID, enrollment.Version, enrollment, now)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info().
		Str("enrollment_id", enrollment.ID).
		Str("action", action).
		Str("from", from).
		Str("to", next).
		Str("actor_id", actor.ID).
		Msg("enrollment transition applied")

	return Result{Enrollment: &enrollment, Event: event}, nil
}

// History returns the append-only audit trail for an entity.
func (e *Engine) History(ctx context.Context, entityType, entityID string) ([]models.TransitionRecord, error) {
	return e.transitions.ListByEntity(ctx, entityType, entityID)
}

func (e *Engine) appendTransition(ctx context.Context, entityType, entityID, from, to, actorID string) error {
	record := models.TransitionRecord{
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  from,
		ToState:    to,
		ActorID:    actorID,
		CreatedAt:  e.now().UTC(),
	}
	return e.transitions.Append(ctx, &record)
}

func (e *Engine) record(entityType, action string, err error) {
	observability.Transitions().WithLabelValues(entityType, action, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, ErrCourseNotActive):
		return "course_not_active"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}

func newEvent(topic, entityType, entityID string, sequence int64, snapshot interface{}, emittedAt time.Time) (bus.Event, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return bus.Event{}, err
	}

	return bus.Event{
		Topic:      topic,
		EntityType: entityType,
		EntityID:   entityID,
		Sequence:   sequence,
		Payload:    payload,
		EmittedAt:  emittedAt,
	}, nil
}
