package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

func TestNotificationRepositoryListByUser(t *testing.T) {
	repo := NewNotificationRepository(setupWorkflowTestDB(t))

	for _, n := range []models.Notification{
		{UserID: "instructor-1", Topic: "course.decided", Message: "Course approved"},
		{UserID: "instructor-1", Topic: "course.decided", Message: "Course rejected"},
		{UserID: "student-1", Topic: "enrollment.decided", Message: "Enrollment approved"},
	} {
		notification := n
		require.NoError(t, repo.Create(context.Background(), &notification))
	}

	mine, err := repo.ListByUser(context.Background(), "instructor-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	// Out-of-range paging values fall back to defaults instead of erroring.
	clamped, err := repo.ListByUser(context.Background(), "instructor-1", -1, -5)
	require.NoError(t, err)
	require.Len(t, clamped, 2)

	limited, err := repo.ListByUser(context.Background(), "instructor-1", 1, 0)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	repo := NewNotificationRepository(setupWorkflowTestDB(t))

	notification := models.Notification{UserID: "student-1", Topic: "enrollment.decided", Message: "Enrollment approved"}
	require.NoError(t, repo.Create(context.Background(), &notification))
	require.False(t, notification.Read)

	read, err := repo.MarkRead(context.Background(), notification.ID, "student-1")
	require.NoError(t, err)
	require.True(t, read.Read)

	// Marking twice is a no-op.
	again, err := repo.MarkRead(context.Background(), notification.ID, "student-1")
	require.NoError(t, err)
	require.True(t, again.Read)

	// A different user cannot touch the row.
	_, err = repo.MarkRead(context.Background(), notification.ID, "student-2")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
