package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/studycal-api/api/swagger"
	"github.com/noah-isme/studycal-api/internal/handler"
	internalmiddleware "github.com/noah-isme/studycal-api/internal/middleware"
	"github.com/noah-isme/studycal-api/internal/realtime"
	"github.com/noah-isme/studycal-api/internal/repository"
	"github.com/noah-isme/studycal-api/internal/service"
	"github.com/noah-isme/studycal-api/pkg/cache"
	"github.com/noah-isme/studycal-api/pkg/config"
	"github.com/noah-isme/studycal-api/pkg/database"
	"github.com/noah-isme/studycal-api/pkg/export"
	"github.com/noah-isme/studycal-api/pkg/extcal"
	"github.com/noah-isme/studycal-api/pkg/jobs"
	"github.com/noah-isme/studycal-api/pkg/lms"
	"github.com/noah-isme/studycal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/studycal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studycal-api/pkg/middleware/requestid"
	"github.com/noah-isme/studycal-api/pkg/scheduler"
	"github.com/noah-isme/studycal-api/pkg/storage"
	"github.com/noah-isme/studycal-api/pkg/syllabus"
	"github.com/noah-isme/studycal-api/pkg/vault"
)

// @title StudyCal API
// @version 1.0.0
// @description Unified study calendar over LMS assignments, syllabus analysis and personal events
// @BasePath /
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Aggregation.CacheTTL, logr, cacheRepo.Enabled())

	sealer, err := vault.New(cfg.Vault.Secret)
	if err != nil {
		logr.Fatal("failed to init credential vault", zap.Error(err))
	}

	files, err := storage.NewLocalStorage(cfg.Storage.BaseDir)
	if err != nil {
		logr.Fatal("failed to init storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Calendar.FeedSecret, cfg.Calendar.FeedTTL)

	integrationRepo := repository.NewIntegrationRepository(db)
	eventRepo := repository.NewEventRepository(db)
	credentials := service.NewCredentialService(repository.NewCredentialRepository(db), sealer, logr)

	lmsClient := lms.NewClient(lms.Config{BaseURL: cfg.LMS.BaseURL, Timeout: cfg.LMS.Timeout, PerPage: cfg.LMS.PerPage}, nil)
	analyzer := syllabus.NewClient(syllabus.Config{BaseURL: cfg.Syllabus.BaseURL, APIKey: cfg.Syllabus.APIKey, Timeout: cfg.Syllabus.Timeout}, nil)

	var target extcal.Target
	switch cfg.Sync.Target {
	case config.SyncTargetICS:
		target = extcal.NewICSFeedPublisher(files, cfg.Calendar.FeedName, storage.FeedPath)
	default:
		target = extcal.NewGoogleCalendarClient(extcal.GoogleConfig{
			BaseURL:    cfg.Calendar.BaseURL,
			CalendarID: cfg.Calendar.CalendarID,
			Timeout:    cfg.Calendar.Timeout,
		}, nil)
	}

	loc := cfg.Aggregation.Location()
	hub := realtime.NewHub(logr)

	var syncJobs *service.SyncJobService
	deps := service.SessionDeps{
		Integrations: integrationRepo,
		Events:       eventRepo,
		Credentials:  credentials,
		LMS:          lmsClient,
		Analyzer:     analyzer,
		Documents:    files,
		Target:       target,
		Cache:        cacheSvc,
		Metrics:      metrics,
		Hub:          hub,
		Aggregation: service.AggregationOptions{
			SourceTimeout:  cfg.Aggregation.SourceTimeout,
			UpcomingLimit:  cfg.Aggregation.UpcomingLimit,
			Location:       loc,
			CacheTTL:       cfg.Aggregation.CacheTTL,
			MaxOccurrences: cfg.Aggregation.MaxOccurrences,
		},
		Analysis: service.AnalysisOptions{
			Timeout:          cfg.Syllabus.Timeout,
			CacheTTL:         cfg.Syllabus.CacheTTL,
			MaxUploadBytes:   cfg.Syllabus.MaxUploadBytes,
			AllowedMIMETypes: cfg.Storage.AllowedMIMETypes,
		},
		Sync: service.SyncOptions{
			Scope:       cfg.Sync.Scope,
			WindowDays:  cfg.Sync.WindowDays,
			PushTimeout: cfg.Sync.PushTimeout,
		},
	}
	if cfg.Sync.AutoSyncAfterAnalysis {
		deps.AutoSync = func(userID string) { syncJobs.AutoSync(userID) }
	}
	sessions := service.NewSessionManager(deps, cfg.Sessions.IdleTTL, logr)

	syncJobs = service.NewSyncJobService(sessions, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Retention:  24 * time.Hour,
		Logger:     logr,
	})

	validate := validator.New()
	events := service.NewEventService(eventRepo, validate, loc, logr)
	events.OnChange(sessions.InvalidateCalendar)

	exports := service.NewExportService(files, signer, service.ExportConfig{
		APIPrefix:    cfg.APIPrefix,
		CalendarName: cfg.Calendar.FeedName,
		DocumentTTL:  cfg.Storage.DocumentTTL,
		Location:     loc,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter(), export.NewICSExporter(""))

	calendar := service.NewCalendarService(sessions, events, exports, cfg.Aggregation.UpcomingWindow)
	courses := service.NewCourseService(sessions)
	integrations := service.NewIntegrationService(integrationRepo, credentials, sessions, lmsClient, validate, logr)
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	cron := scheduler.New(logr)
	mustRegister := func(name, spec string, task scheduler.Task) {
		if err := cron.Register(name, spec, task); err != nil {
			logr.Fatal("failed to register scheduled task", zap.String("task", name), zap.Error(err))
		}
	}
	mustRegister("sessions.evict", cfg.Sessions.EvictSchedule, sessions.EvictIdleTask)
	mustRegister("documents.cleanup", cfg.Storage.CleanupSchedule, exports.CleanupDocuments)
	mustRegister("jobs.prune", "@hourly", syncJobs.PruneTask)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	handler.Handlers{
		Integrations: handler.NewIntegrationHandler(integrations),
		Calendar:     handler.NewCalendarHandler(calendar),
		Events:       handler.NewEventHandler(calendar),
		Courses:      handler.NewCourseHandler(courses),
		Sync:         handler.NewSyncHandler(calendar, syncJobs, cfg.APIPrefix),
		Realtime:     handler.NewRealtimeHandler(hub, cfg.CORS.AllowedOrigins, logr),
		Metrics:      handler.NewMetricsHandler(metrics, sessions),
	}.Register(r, cfg.APIPrefix, internalmiddleware.JWT(auth), internalmiddleware.JWTWithQuery(auth))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	syncJobs.Start(ctx)
	cron.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "sync_target", target.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	cron.Stop()
	syncJobs.Stop()
}
