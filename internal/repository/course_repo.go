package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// ErrVersionConflict indicates a compare-and-swap update lost the race: the
// stored version no longer matches the caller's expected version. Callers
// re-read and retry; this is the only concurrency-control primitive in the
// store.
var ErrVersionConflict = errors.New("version conflict")

// CourseRepository defines persistence operations for courses. The workflow
// engine is the sole writer; everything else reads.
type CourseRepository interface {
	GetByID(ctx context.Context, id string) (models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	UpdateCAS(ctx context.Context, course *models.Course, expectedVersion int64) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Course, error)
	ListByState(ctx context.Context, state string) ([]models.Course, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id string) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.Version == 0 {
		course.Version = 1
	}
	return r.db.WithContext(ctx).Create(course).Error
}

// UpdateCAS persists the workflow-owned columns only when the stored version
// still equals expectedVersion, bumping it by exactly one. RowsAffected==0
// means a concurrent writer advanced the row first.
func (r *courseRepository) UpdateCAS(ctx context.Context, course *models.Course, expectedVersion int64) error {
	course.Version = expectedVersion + 1
	course.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ? AND version = ?", course.ID, expectedVersion).
		Updates(map[string]interface{}{
			"state":        course.State,
			"submitted_at": course.SubmittedAt,
			"decided_at":   course.DecidedAt,
			"decided_by":   course.DecidedBy,
			"version":      course.Version,
			"updated_at":   course.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	return nil
}

func (r *courseRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&courses).Error; err != nil {
		return nil, err
	}

	return courses, nil
}

func (r *courseRepository) ListByState(ctx context.Context, state string) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.WithContext(ctx).
		Where("state = ?", state).
		Order("submitted_at ASC").
		Find(&courses).Error; err != nil {
		return nil, err
	}

	return courses, nil
}
