package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/dto"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

var (
	// ErrCourseNotFound indicates the requested course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrCourseContentEmpty indicates the title or description had no text
	// left once markup was stripped. It is caller error, not server error.
	ErrCourseContentEmpty = errors.New("course title or description empty after sanitization")
)

// CourseService exposes the course workflow use cases. On a version
// conflict the whole operation is retried once against the fresh state
// before the conflict is surfaced.
type CourseService interface {
	Submit(ctx context.Context, payload dto.CourseSubmitRequest, actor workflow.Actor) (dto.CourseResponse, error)
	Decide(ctx context.Context, courseID string, payload dto.DecisionRequest, actor workflow.Actor) (dto.CourseResponse, error)
	Withdraw(ctx context.Context, courseID string, actor workflow.Actor) (dto.CourseResponse, error)
	Get(ctx context.Context, courseID string) (dto.CourseResponse, error)
	ListPending(ctx context.Context) ([]dto.CourseResponse, error)
	ListByOwner(ctx context.Context, ownerID string) ([]dto.CourseResponse, error)
}

type courseService struct {
	engine     *workflow.Engine
	courses    repository.CourseRepository
	dispatcher Dispatcher
	validator  *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// NewCourseService builds the course workflow service.
func NewCourseService(engine *workflow.Engine, courses repository.CourseRepository, dispatcher Dispatcher, validate *validator.Validate, logger zerolog.Logger) CourseService {
	return &courseService{
		engine:     engine,
		courses:    courses,
		dispatcher: dispatcher,
		validator:  validate,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "course_service").Logger(),
	}
}

func (s *courseService) Submit(ctx context.Context, payload dto.CourseSubmitRequest, actor workflow.Actor) (dto.CourseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseResponse{}, err
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(payload.Title))
	description := strings.TrimSpace(s.sanitizer.Sanitize(payload.Description))
	if title == "" || description == "" {
		return dto.CourseResponse{}, ErrCourseContentEmpty
	}

	course := models.Course{
		Title:       title,
		Description: description,
		Category:    payload.Category,
		Level:       payload.Level,
		ModuleRefs:  datatypes.NewJSONSlice(payload.ModuleRefs),
	}

	result, err := s.engine.SubmitCourse(ctx, course, actor)
	if err != nil {
		return dto.CourseResponse{}, err
	}

	s.dispatcher.Dispatch(ctx, result)

	return dto.NewCourseResponse(*result.Course), nil
}

func (s *courseService) Decide(ctx context.Context, courseID string, payload dto.DecisionRequest, actor workflow.Actor) (dto.CourseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseResponse{}, err
	}

	return s.apply(ctx, courseID, payload.Decision, actor)
}

func (s *courseService) Withdraw(ctx context.Context, courseID string, actor workflow.Actor) (dto.CourseResponse, error) {
	return s.apply(ctx, courseID, workflow.ActionWithdraw, actor)
}

// apply runs one course transition, retrying once on a version conflict.
func (s *courseService) apply(ctx context.Context, courseID, action string, actor workflow.Actor) (dto.CourseResponse, error) {
	result, err := s.engine.ApplyCourse(ctx, courseID, action, actor)
	if errors.Is(err, repository.ErrVersionConflict) {
		s.logger.Debug().Str("course_id", courseID).Str("action", action).Msg("version conflict, retrying once")
		result, err = s.engine.ApplyCourse(ctx, courseID, action, actor)
	}
	if err != nil {
		return dto.CourseResponse{}, err
	}

	s.dispatcher.Dispatch(ctx, result)

	return dto.NewCourseResponse(*result.Course), nil
}

func (s *courseService) Get(ctx context.Context, courseID string) (dto.CourseResponse, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseResponse{}, ErrCourseNotFound
		}
		return dto.CourseResponse{}, err
	}

	return dto.NewCourseResponse(course), nil
}

func (s *courseService) ListPending(ctx context.Context) ([]dto.CourseResponse, error) {
	courses, err := s.courses.ListByState(ctx, models.CourseStatePendingReview)
	if err != nil {
		return nil, err
	}

	return dto.NewCourseResponseSlice(courses), nil
}

func (s *courseService) ListByOwner(ctx context.Context, ownerID string) ([]dto.CourseResponse, error) {
	courses, err := s.courses.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	return dto.NewCourseResponseSlice(courses), nil
}
