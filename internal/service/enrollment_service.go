package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/dto"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

// ErrEnrollmentNotFound indicates the requested enrollment does not exist.
var ErrEnrollmentNotFound = errors.New("enrollment not found")

// EnrollmentService exposes the enrollment workflow use cases.
type EnrollmentService interface {
	Request(ctx context.Context, payload dto.EnrollmentRequest, actor workflow.Actor) (dto.EnrollmentResponse, error)
	Decide(ctx context.Context, enrollmentID string, payload dto.DecisionRequest, actor workflow.Actor) (dto.EnrollmentResponse, error)
	Get(ctx context.Context, enrollmentID string) (dto.EnrollmentResponse, error)
	ListPending(ctx context.Context) ([]dto.EnrollmentResponse, error)
	ListByStudent(ctx context.Context, studentID string) ([]dto.EnrollmentResponse, error)
}

type enrollmentService struct {
	engine      *workflow.Engine
	enrollments repository.EnrollmentRepository
	dispatcher  Dispatcher
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewEnrollmentService builds the enrollment workflow service.
func NewEnrollmentService(engine *workflow.Engine, enrollments repository.EnrollmentRepository, dispatcher Dispatcher, validate *validator.Validate, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		engine:      engine,
		enrollments: enrollments,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
	}
}

func (s *enrollmentService) Request(ctx context.Context, payload dto.EnrollmentRequest, actor workflow.Actor) (dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	result, err := s.engine.RequestEnrollment(ctx, payload.CourseID, actor)
	if err != nil {
		return dto.EnrollmentResponse{}, err
	}

	s.dispatcher.Dispatch(ctx, result)

	return dto.NewEnrollmentResponse(*result.Enrollment), nil
}

func (s *enrollmentService) Decide(ctx context.Context, enrollmentID string, payload dto.DecisionRequest, actor workflow.Actor) (dto.EnrollmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EnrollmentResponse{}, err
	}

	result, err := s.engine.ApplyEnrollment(ctx, enrollmentID, payload.Decision, actor)
	if errors.Is(err, repository.ErrVersionConflict) {
		s.logger.Debug().Str("enrollment_id", enrollmentID).Str("action", payload.Decision).Msg("version conflict, retrying once")
		result, err = s.engine.ApplyEnrollment(ctx, enrollmentID, payload.Decision, actor)
	}
	if err != nil {
		return dto.EnrollmentResponse{}, err
	}

	s.dispatcher.Dispatch(ctx, result)

	return dto.NewEnrollmentResponse(*result.Enrollment), nil
}

func (s *enrollmentService) Get(ctx context.Context, enrollmentID string) (dto.EnrollmentResponse, error) {
	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EnrollmentResponse{}, ErrEnrollmentNotFound
		}
		return dto.EnrollmentResponse{}, err
	}

	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) ListPending(ctx context.Context) ([]dto.EnrollmentResponse, error) {
	enrollments, err := s.enrollments.ListByState(ctx, models.EnrollmentStatePending)
	if err != nil {
		return nil, err
	}

	return dto.NewEnrollmentResponseSlice(enrollments), nil
}

func (s *enrollmentService) ListByStudent(ctx context.Context, studentID string) ([]dto.EnrollmentResponse, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return dto.NewEnrollmentResponseSlice(enrollments), nil
}
