package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

func setupWorkflowTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache database keeps every pooled connection on the
	// same in-memory store while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Course{}, &models.Enrollment{}, &models.TransitionRecord{}, &models.Notification{}))
	return db
}

func seedCourse(t *testing.T, repo CourseRepository, state, ownerID string) models.Course {
	t.Helper()

	course := models.Course{
		ID:          uuid.NewString(),
		Title:       "Operating Systems",
		Description: "Processes, scheduling and memory management.",
		OwnerID:     ownerID,
		State:       state,
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), &course))
	return course
}

func TestCourseRepositoryCreateAndGet(t *testing.T) {
	repo := NewCourseRepository(setupWorkflowTestDB(t))

	course := seedCourse(t, repo, models.CourseStatePendingReview, "instructor-1")
	require.Equal(t, int64(1), course.Version, "create defaults the version")

	stored, err := repo.GetByID(context.Background(), course.ID)
	require.NoError(t, err)
	require.Equal(t, course.Title, stored.Title)
	require.Equal(t, models.CourseStatePendingReview, stored.State)

	_, err = repo.GetByID(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCourseRepositoryUpdateCAS(t *testing.T) {
	repo := NewCourseRepository(setupWorkflowTestDB(t))
	course := seedCourse(t, repo, models.CourseStatePendingReview, "instructor-1")

	decidedAt := time.Now().UTC()
	decidedBy := "admin-1"
	course.State = models.CourseStateActive
	course.DecidedAt = &decidedAt
	course.DecidedBy = &decidedBy

	require.NoError(t, repo.UpdateCAS(context.Background(), &course, 1))
	require.Equal(t, int64(2), course.Version)

	stored, err := repo.GetByID(context.Background(), course.ID)
	require.NoError(t, err)
	require.Equal(t, models.CourseStateActive, stored.State)
	require.Equal(t, int64(2), stored.Version)
	require.NotNil(t, stored.DecidedBy)
	require.Equal(t, "admin-1", *stored.DecidedBy)
}

func TestCourseRepositoryUpdateCASStaleVersion(t *testing.T) {
	repo := NewCourseRepository(setupWorkflowTestDB(t))
	course := seedCourse(t, repo, models.CourseStatePendingReview, "instructor-1")

	winner := course
	winner.State = models.CourseStateActive
	require.NoError(t, repo.UpdateCAS(context.Background(), &winner, 1))

	// The loser still holds version 1 and must not clobber the row.
	loser := course
	loser.State = models.CourseStateRejected
	err := repo.UpdateCAS(context.Background(), &loser, 1)
	require.ErrorIs(t, err, ErrVersionConflict)

	stored, err := repo.GetByID(context.Background(), course.ID)
	require.NoError(t, err)
	require.Equal(t, models.CourseStateActive, stored.State)
	require.Equal(t, int64(2), stored.Version)
}

func TestCourseRepositoryUpdateCASUnknownRow(t *testing.T) {
	repo := NewCourseRepository(setupWorkflowTestDB(t))

	course := models.Course{ID: uuid.NewString(), State: models.CourseStateActive}
	err := repo.UpdateCAS(context.Background(), &course, 1)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestCourseRepositoryListByState(t *testing.T) {
	repo := NewCourseRepository(setupWorkflowTestDB(t))

	first := seedCourse(t, repo, models.CourseStatePendingReview, "instructor-1")
	second := seedCourse(t, repo, models.CourseStatePendingReview, "instructor-2")
	seedCourse(t, repo, models.CourseStateActive, "instructor-1")

	pending, err := repo.ListByState(context.Background(), models.CourseStatePendingReview)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID, "oldest submission first")
	require.Equal(t, second.ID, pending[1].ID)
}

func TestCourseRepositoryListByOwner(t *testing.T) {
	repo := NewCourseRepository(setupWorkflowTestDB(t))

	mine := seedCourse(t, repo, models.CourseStatePendingReview, "instructor-1")
	seedCourse(t, repo, models.CourseStatePendingReview, "instructor-2")

	courses, err := repo.ListByOwner(context.Background(), "instructor-1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, mine.ID, courses[0].ID)
}
