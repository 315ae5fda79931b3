package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/tutorconnect/tutorconnect-api/api/swagger"
	"github.com/tutorconnect/tutorconnect-api/internal/handler"
	internalmiddleware "github.com/tutorconnect/tutorconnect-api/internal/middleware"
	"github.com/tutorconnect/tutorconnect-api/internal/repository"
	"github.com/tutorconnect/tutorconnect-api/internal/scheduler"
	"github.com/tutorconnect/tutorconnect-api/internal/service"
	"github.com/tutorconnect/tutorconnect-api/migrations"
	"github.com/tutorconnect/tutorconnect-api/pkg/cache"
	"github.com/tutorconnect/tutorconnect-api/pkg/config"
	"github.com/tutorconnect/tutorconnect-api/pkg/database"
	"github.com/tutorconnect/tutorconnect-api/pkg/events"
	"github.com/tutorconnect/tutorconnect-api/pkg/logger"
	"github.com/tutorconnect/tutorconnect-api/pkg/mailer"
	corsmiddleware "github.com/tutorconnect/tutorconnect-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorconnect/tutorconnect-api/pkg/middleware/requestid"
	"github.com/tutorconnect/tutorconnect-api/pkg/storage"
)

// @title TutorConnect API
// @version 1.0.0
// @description Tutoring marketplace: posts, chats, appointments and GDPR requests
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db, migrations.FS, cfg.Database.MigrationsDir, logr)
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logr.Warn("redis disabled; post search cache and typing indicators are off")
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	sender, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	publisher, err := events.New(cfg.AMQP)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	defer publisher.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	dataRequestRepo := repository.NewDataRequestRepository(db)

	cacheService := service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Posts.CacheTTL, logr, redisClient != nil)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	profileService := service.NewProfileService(userRepo, store, validate, logr, cfg.Storage.MaxAvatarBytes)
	postService := service.NewPostService(postRepo, cacheService, cfg.Posts.CacheTTL, validate, logr)
	chatService := service.NewChatService(chatRepo, messageRepo, postRepo, validate, logr)

	var typingService *service.TypingService
	if redisClient != nil {
		typingService = service.NewTypingService(repository.NewTypingRepository(redisClient, logr), chatRepo, cfg.Appointments.TypingTTL, logr)
	} else {
		typingService = service.NewTypingService(nil, chatRepo, cfg.Appointments.TypingTTL, logr)
	}

	notifier := service.NewReminderNotifier(sender, cfg.Appointments.ReminderSubject, cfg.Appointments.AppBaseURL, metrics, logr)
	reminderQueue := service.NewReminderQueue(notifier, cfg.Appointments.ReminderWorkers, cfg.Appointments.ReminderRetries, logr)

	appointmentService := service.NewAppointmentService(service.AppointmentServiceDeps{
		Repo:      appointmentRepo,
		Chats:     chatRepo,
		Posts:     postRepo,
		Reminders: reminderQueue,
		Publisher: publisher,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})

	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
	exportService := service.NewExportService(service.ExportSources{
		Users:        userRepo,
		Posts:        postRepo,
		Chats:        chatRepo,
		Messages:     messageRepo,
		Appointments: appointmentRepo,
	}, store, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr)
	gdprService := service.NewGDPRService(dataRequestRepo, userRepo, exportService, metrics, service.GDPRConfig{ExportTTL: cfg.GDPR.ExportTTL}, validate, logr)
	gdprQueue := service.NewDataRequestQueue(gdprService, cfg.GDPR.WorkerConcurrency, cfg.GDPR.WorkerRetries, logr)

	reminderQueue.Start(ctx)
	defer reminderQueue.Stop()
	gdprQueue.Start(ctx)
	defer gdprQueue.Stop()

	if resumed, err := gdprService.Resume(ctx); err != nil {
		logr.Warn("failed to resume pending data requests", zap.Error(err))
	} else if resumed > 0 {
		logr.Info("resumed pending data requests", zap.Int("count", resumed))
	}

	authLimiter := internalmiddleware.NewRateLimiter(cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthPer, cfg.RateLimit.AuthBlock)

	sweepInterval := cfg.Appointments.SweepInterval
	if !cfg.Appointments.SweepEnabled {
		sweepInterval = 0
	}
	sched, err := scheduler.New(logr,
		scheduler.SweepTask(appointmentService, sweepInterval),
		scheduler.ExportCleanupTask(gdprService, cfg.GDPR.CleanupInterval, logr),
		scheduler.LimiterPruneTask(authLimiter, 10*time.Minute, 30*time.Minute),
	)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logr.Warn("scheduler shutdown failed", zap.Error(err))
		}
	}()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Profile:      handler.NewProfileHandler(profileService),
		Posts:        handler.NewPostHandler(postService),
		Chats:        handler.NewChatHandler(chatService, typingService),
		Appointments: handler.NewAppointmentHandler(appointmentService),
		GDPR:         handler.NewGDPRHandler(gdprService),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
	}, handler.RouterDeps{
		APIPrefix:   cfg.APIPrefix,
		Tokens:      authService,
		Audit:       userRepo,
		AuthLimiter: authLimiter,
		Logger:      logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
