package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/bus"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/config"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/dto"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/handler"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/router"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/service"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

func setupWorkflowApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Course{}, &models.Enrollment{}, &models.TransitionRecord{}, &models.Notification{}))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	engine := workflow.NewEngine(courseRepo, enrollmentRepo, transitionRepo, workflow.DefaultRolePolicy(), logger)
	eventBus := bus.New(logger)
	dispatcher := service.NewDispatcher(eventBus, notificationRepo, nil, nil, service.DispatcherConfig{}, logger)

	courseService := service.NewCourseService(engine, courseRepo, dispatcher, validate, logger)
	enrollmentService := service.NewEnrollmentService(engine, enrollmentRepo, dispatcher, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "workflow-test", AppEnv: "test"}, router.Dependencies{
		CourseHandler:       handler.NewCourseHandler(courseService, logger),
		EnrollmentHandler:   handler.NewEnrollmentHandler(enrollmentService, logger),
		AuditHandler:        handler.NewAuditHandler(engine, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id := c.Get("X-Actor-ID"); id != "" {
				c.Locals("actor_id", id)
			}
			if role := c.Get("X-Actor-Role"); role != "" {
				c.Locals("actor_role", role)
			}
			return c.Next()
		},
	})

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}, actorID, role string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
	}
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func submitCoursePayload() map[string]interface{} {
	return map[string]interface{}{
		"title":       "Introduction to Go",
		"description": "Slices, maps, goroutines and the standard library.",
		"category":    "programming",
		"level":       "beginner",
		"module_refs": []string{"module-1"},
	}
}

func submitCourseRequest(t *testing.T, app *fiber.App, ownerID string) dto.CourseResponse {
	t.Helper()

	resp := doJSON(t, app, "POST", "/api/v1/courses", submitCoursePayload(), ownerID, workflow.RoleInstructor)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool               `json:"success"`
		Data    dto.CourseResponse `json:"data"`
		Message string             `json:"message"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "course submitted for review", body.Message)
	return body.Data
}

func TestCourseSubmitEndpoint(t *testing.T) {
	app := setupWorkflowApp(t)

	course := submitCourseRequest(t, app, "instructor-1")
	require.Equal(t, models.CourseStatePendingReview, course.State)
	require.Equal(t, "instructor-1", course.OwnerID)
	require.NotEmpty(t, course.ID)
}

func TestCourseSubmitEndpointRejectsInvalidPayload(t *testing.T) {
	app := setupWorkflowApp(t)

	payload := submitCoursePayload()
	payload["title"] = "Go"

	resp := doJSON(t, app, "POST", "/api/v1/courses", payload, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCourseSubmitEndpointRejectsMarkupOnlyTitle(t *testing.T) {
	app := setupWorkflowApp(t)

	payload := submitCoursePayload()
	payload["title"] = "<b><i></i></b>"

	resp := doJSON(t, app, "POST", "/api/v1/courses", payload, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCourseSubmitEndpointRequiresInstructor(t *testing.T) {
	app := setupWorkflowApp(t)

	resp := doJSON(t, app, "POST", "/api/v1/courses", submitCoursePayload(), "student-1", workflow.RoleStudent)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestCourseDecisionEndpoint(t *testing.T) {
	app := setupWorkflowApp(t)
	course := submitCourseRequest(t, app, "instructor-1")

	resp := doJSON(t, app, "POST", "/api/v1/courses/"+course.ID+"/decision", map[string]string{"decision": "approve"}, "admin-1", workflow.RoleAdmin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool               `json:"success"`
		Data    dto.CourseResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, models.CourseStateActive, body.Data.State)
	require.NotNil(t, body.Data.DecidedBy)
	require.Equal(t, "admin-1", *body.Data.DecidedBy)

	// Deciding again conflicts with the terminal state.
	resp = doJSON(t, app, "POST", "/api/v1/courses/"+course.ID+"/decision", map[string]string{"decision": "reject"}, "admin-1", workflow.RoleAdmin)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCourseDecisionEndpointRequiresAdmin(t *testing.T) {
	app := setupWorkflowApp(t)
	course := submitCourseRequest(t, app, "instructor-1")

	resp := doJSON(t, app, "POST", "/api/v1/courses/"+course.ID+"/decision", map[string]string{"decision": "approve"}, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestCourseDecisionEndpointUnknownCourse(t *testing.T) {
	app := setupWorkflowApp(t)

	resp := doJSON(t, app, "POST", "/api/v1/courses/"+uuid.NewString()+"/decision", map[string]string{"decision": "approve"}, "admin-1", workflow.RoleAdmin)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCourseWithdrawEndpoint(t *testing.T) {
	app := setupWorkflowApp(t)
	course := submitCourseRequest(t, app, "instructor-1")

	resp := doJSON(t, app, "POST", "/api/v1/courses/"+course.ID+"/withdraw", nil, "instructor-2", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, "POST", "/api/v1/courses/"+course.ID+"/withdraw", nil, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.CourseResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, models.CourseStateRejected, body.Data.State)
}

func TestCoursePendingEndpoint(t *testing.T) {
	app := setupWorkflowApp(t)
	submitCourseRequest(t, app, "instructor-1")

	resp := doJSON(t, app, "GET", "/api/v1/courses/pending", nil, "student-1", workflow.RoleStudent)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/api/v1/courses/pending", nil, "admin-1", workflow.RoleAdmin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data []dto.CourseResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 1)
}

func TestCourseGetAndListEndpoints(t *testing.T) {
	app := setupWorkflowApp(t)
	course := submitCourseRequest(t, app, "instructor-1")

	resp := doJSON(t, app, "GET", "/api/v1/courses/"+course.ID, nil, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/api/v1/courses/"+uuid.NewString(), nil, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// Owners see their own list; admins may filter by owner.
	resp = doJSON(t, app, "GET", "/api/v1/courses", nil, "instructor-1", workflow.RoleInstructor)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var mine struct {
		Data []dto.CourseResponse `json:"data"`
	}
	decodeResponse(t, resp, &mine)
	require.Len(t, mine.Data, 1)

	resp = doJSON(t, app, "GET", "/api/v1/courses?owner_id=instructor-1", nil, "admin-1", workflow.RoleAdmin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var filtered struct {
		Data []dto.CourseResponse `json:"data"`
	}
	decodeResponse(t, resp, &filtered)
	require.Len(t, filtered.Data, 1)
}

func TestHealthEndpoint(t *testing.T) {
	app := setupWorkflowApp(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                   `json:"success"`
		Data    handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "ok", body.Data.Status)
	require.Equal(t, "workflow-test", body.Data.Service)
}
