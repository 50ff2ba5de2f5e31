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

	_ "github.com/noah-isme/edu-records-api/api/swagger"
	"github.com/noah-isme/edu-records-api/internal/handler"
	"github.com/noah-isme/edu-records-api/internal/middleware"
	"github.com/noah-isme/edu-records-api/internal/repository"
	"github.com/noah-isme/edu-records-api/internal/service"
	"github.com/noah-isme/edu-records-api/pkg/cache"
	"github.com/noah-isme/edu-records-api/pkg/config"
	"github.com/noah-isme/edu-records-api/pkg/database"
	"github.com/noah-isme/edu-records-api/pkg/jobs"
	"github.com/noah-isme/edu-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-records-api/pkg/middleware/requestid"
	"github.com/noah-isme/edu-records-api/pkg/storage"
)

// @title Edu Records API
// @version 1.0.0
// @description Role-based academic records backend
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	cacheSvc := service.NewCacheService(nil, metricsSvc, cfg.Subjects.CacheTTL, logr, false)
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, subject caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metricsSvc, cfg.Subjects.CacheTTL, logr, true)
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	exports, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	markRepo := repository.NewMarkRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()
	gate := service.NewAccessGate(policyRepo)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "edu-records-api",
	})
	userSvc := service.NewUserService(userRepo, gate, validate, logr)
	policySvc := service.NewPolicyService(policyRepo, userRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, gate, cacheSvc, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, uploads, gate, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, gate, validate, logr)
	markSvc := service.NewMarkService(markRepo, gate, validate, logr)

	reportSvc := service.NewReportService(reportRepo, attendanceRepo, markRepo, exports, signer, metricsSvc, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})

	reportQueue := jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		OnExhausted: func(ctx context.Context, job jobs.Job, err error) {
			reportSvc.MarkExhausted(ctx, job.ID, err)
		},
		Logger: logr,
	})
	if cfg.Reports.Enabled {
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		reportSvc.SetQueue(reportQueue)
		reportSvc.StartCleanup(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.MaxMultipartMemory = cfg.Uploads.MaxFileSizeBytes

	h := handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		User:       handler.NewUserHandler(userSvc),
		Policy:     handler.NewPolicyHandler(policySvc),
		Subject:    handler.NewSubjectHandler(subjectSvc),
		Assignment: handler.NewAssignmentHandler(assignmentSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Mark:       handler.NewMarkHandler(markSvc),
		Report:     handler.NewReportHandler(reportSvc),
		Metrics:    handler.NewMetricsHandler(metricsSvc),
	}
	handler.RegisterRoutes(r, h, authSvc, userRepo)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
