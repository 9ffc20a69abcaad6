package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// EnrollmentRepository defines persistence operations for enrollments.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id string) (models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateCAS(ctx context.Context, enrollment *models.Enrollment, expectedVersion int64) error
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	ListByState(ctx context.Context, state string) ([]models.Enrollment, error)
	FindNonRejected(ctx context.Context, courseID, studentID string) (models.Enrollment, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates a GORM-backed repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id string) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).First(&enrollment, "id = ?", id).Error; err != nil {
		return models.Enrollment{}, err
	}

	return enrollment, nil
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.Version == 0 {
		enrollment.Version = 1
	}
	return r.db.WithContext(ctx).Create(enrollment).Error
}

// UpdateCAS persists the workflow-owned columns only when the stored version
// still equals expectedVersion. See CourseRepository.UpdateCAS.
func (r *enrollmentRepository) UpdateCAS(ctx context.Context, enrollment *models.Enrollment, expectedVersion int64) error {
	enrollment.Version = expectedVersion + 1
	enrollment.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND version = ?", enrollment.ID, expectedVersion).
		Updates(map[string]interface{}{
			"state":      enrollment.State,
			"decided_at": enrollment.DecidedAt,
			"decided_by": enrollment.DecidedBy,
			"version":    enrollment.Version,
			"updated_at": enrollment.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	return nil
}

func (r *enrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("requested_at DESC").
		Find(&enrollments).Error; err != nil {
		return nil, err
	}

	return enrollments, nil
}

func (r *enrollmentRepository) ListByState(ctx context.Context, state string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("state = ?", state).
		Order("requested_at ASC").
		Find(&enrollments).Error; err != nil {
		return nil, err
	}

	return enrollments, nil
}

// FindNonRejected returns the pending or approved enrollment for the given
// (course, student) pair, if one exists. Backs the duplicate-request guard.
func (r *enrollmentRepository) FindNonRejected(ctx context.Context, courseID, studentID string) (models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND student_id = ? AND state <> ?", courseID, studentID, models.EnrollmentStateRejected).
		First(&enrollment).Error; err != nil {
		return models.Enrollment{}, err
	}

	return enrollment, nil
}
