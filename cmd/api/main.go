package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/bus"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/config"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/database"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/handler"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/middleware"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/repository"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/router"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/service"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Course{}, &models.Enrollment{}, &models.TransitionRecord{}, &models.Notification{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	transitionRepo := repository.NewTransitionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	engine := workflow.NewEngine(courseRepo, enrollmentRepo, transitionRepo, workflow.DefaultRolePolicy(), logger)

	eventBus := bus.New(logger)
	dispatcher := service.NewDispatcher(eventBus, notificationRepo, redisClient, natsConn, service.DispatcherConfig{
		ChannelBase:  cfg.EventChannelBase,
		MaxAttempts:  cfg.DispatchAttempts,
		RetryBackoff: cfg.DispatchBackoff,
	}, logger)

	courseService := service.NewCourseService(engine, courseRepo, dispatcher, validate, logger)
	enrollmentService := service.NewEnrollmentService(engine, enrollmentRepo, dispatcher, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, logger)

	courseHandler := handler.NewCourseHandler(courseService, logger)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService, logger)
	auditHandler := handler.NewAuditHandler(engine, logger)
	eventHandler := handler.NewEventHandler(dispatcher, cfg.StreamKeepAlive, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app)
	router.Register(app, cfg, router.Dependencies{
		CourseHandler:       courseHandler,
		EnrollmentHandler:   enrollmentHandler,
		AuditHandler:        auditHandler,
		EventHandler:        eventHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatcher.Start(dispatchCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
