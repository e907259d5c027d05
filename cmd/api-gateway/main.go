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

	_ "github.com/noah-isme/sma-progress-api/api/swagger"
	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-progress-api/internal/middleware"
	"github.com/noah-isme/sma-progress-api/internal/repository"
	"github.com/noah-isme/sma-progress-api/internal/service"
	"github.com/noah-isme/sma-progress-api/pkg/auth"
	"github.com/noah-isme/sma-progress-api/pkg/cache"
	"github.com/noah-isme/sma-progress-api/pkg/config"
	"github.com/noah-isme/sma-progress-api/pkg/database"
	"github.com/noah-isme/sma-progress-api/pkg/jobs"
	"github.com/noah-isme/sma-progress-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-progress-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-progress-api/pkg/middleware/requestid"
)

// @title SMA Progress API
// @version 1.0.0
// @description Grade scales, term summaries, class rankings and performance trends.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache and cross-instance locks", zap.String("addr", cache.Addr(cfg.Redis)), zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logger.Component(logr, "cache"))
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.RankingTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	scaleRepo := repository.NewGradeScaleRepository(db)
	jobRepo := repository.NewProgressJobRepository(db)

	scaleSvc := service.NewGradeScaleService(scaleRepo, cacheSvc, validate, cfg.Cache.ScaleTTL, logger.Component(logr, "grade_scales"))
	progressSvc := service.NewProgressService(
		repository.NewTermRepository(db),
		repository.NewRosterRepository(db),
		repository.NewMarksRepository(db),
		repository.NewTermSummaryRepository(db),
		repository.NewStudentTrendRepository(db),
		scaleSvc,
		cacheSvc,
		metricsSvc,
		logger.Component(logr, "progress"),
		service.ProgressServiceConfig{
			CohortConcurrency:    cfg.Progress.CohortConcurrency,
			TieBasis:             grading.TieBasis(cfg.Grading.TieBasis),
			DefaultAcademicLevel: cfg.Grading.DefaultAcademicLevel,
			RankingTTL:           cfg.Cache.RankingTTL,
		},
	)

	worker := service.NewProgressWorker(jobRepo, progressSvc, repository.NewLockRepository(redisClient), logger.Component(logr, "progress_worker"), service.ProgressWorkerConfig{
		LockTTL:    cfg.Progress.LockTTL,
		MaxRetries: cfg.Progress.WorkerRetries,
	})
	queue := jobs.NewQueue("progress", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Progress.WorkerConcurrency,
		MaxRetries: cfg.Progress.WorkerRetries,
		RetryDelay: cfg.Progress.RetryDelay,
		Logger:     logger.Component(logr, "queue"),
	})
	jobSvc := service.NewProgressJobService(jobRepo, queue, validate, logger.Component(logr, "progress_jobs"))

	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	queue.Start(queueCtx)
	if cfg.Progress.RecoverOnStart {
		jobSvc.Recover(queueCtx)
	}

	scaleHandler := handler.NewGradeScaleHandler(scaleSvc)
	progressHandler := handler.NewProgressHandler(jobSvc, progressSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.HealthCheck{
		"postgres": db.PingContext,
		"redis":    cacheRepo.Ping,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(internalmiddleware.Metrics(metricsSvc))
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	verifier := auth.NewVerifier(cfg.JWT.Secret, 30*time.Second)
	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(verifier))
	api.GET("/metrics/summary", internalmiddleware.RequireAdmin(), metricsHandler.Summary)

	scales := api.Group("/grade-scales")
	scales.GET("", scaleHandler.List)
	scales.GET("/:id", scaleHandler.Get)
	scales.POST("/validate", scaleHandler.Validate)
	scales.POST("/:id/lookup", scaleHandler.Lookup)
	scales.POST("", internalmiddleware.RequireAdmin(), scaleHandler.Create)
	scales.POST("/:id/default", internalmiddleware.RequireAdmin(), scaleHandler.SetDefault)

	progress := api.Group("/progress")
	progress.POST("/generate", internalmiddleware.RequireAdmin(), progressHandler.Generate)
	progress.GET("/jobs/:id", progressHandler.JobStatus)
	progress.POST("/jobs/:id/cancel", internalmiddleware.RequireAdmin(), progressHandler.CancelJob)
	progress.GET("/students/:id", progressHandler.StudentProgress)
	progress.GET("/classes/:id/rankings", progressHandler.ClassRanking)
	progress.GET("/classes/:id/distribution", progressHandler.ClassDistribution)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	queue.Stop()
}
