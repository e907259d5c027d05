package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/internal/repository"
	"github.com/noah-isme/sma-progress-api/internal/service"
	"github.com/noah-isme/sma-progress-api/pkg/cache"
	"github.com/noah-isme/sma-progress-api/pkg/config"
	"github.com/noah-isme/sma-progress-api/pkg/database"
	"github.com/noah-isme/sma-progress-api/pkg/logger"
)

func newRegenerateCmd() *cobra.Command {
	var year, classID, studentID string
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Regenerate progress synchronously against the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if classID != "" && studentID != "" {
				return fmt.Errorf("--class and --student are mutually exclusive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return regenerate(ctx, cmd, year, classID, studentID)
		},
	}
	cmd.Flags().StringVar(&year, "year", "", "academic year")
	cmd.Flags().StringVar(&classID, "class", "", "only this class")
	cmd.Flags().StringVar(&studentID, "student", "", "only this student")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func regenerate(ctx context.Context, cmd *cobra.Command, year, classID, studentID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, ranking cache not invalidated and year lock is process local", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	lease, err := repository.NewLockRepository(redisClient).Acquire(ctx, cache.Key("lock", "progress", year), cfg.Progress.LockTTL)
	if err != nil {
		return fmt.Errorf("academic year %s: %w", year, err)
	}
	defer lease.Release(context.Background()) //nolint:errcheck

	progress, _ := newProgressService(cfg, db, redisClient, logr)

	var result models.BatchResult
	switch {
	case studentID != "":
		result, err = progress.GenerateStudent(ctx, studentID, year)
	case classID != "":
		result, err = progress.GenerateClass(ctx, classID, year)
	default:
		result, err = progress.GenerateYear(ctx, year)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if encErr := encoder.Encode(result); encErr != nil {
		return encErr
	}
	return err
}

// newProgressService wires the orchestrator the same way the API does, so a
// regeneration drops the rankings the API has cached.
func newProgressService(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*service.ProgressService, *service.CacheService) {
	cacheRepo := repository.NewCacheRepository(redisClient, logger.Component(logr, "cache"))
	cacheSvc := service.NewCacheService(cacheRepo, nil, cfg.Cache.RankingTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	scales := service.NewGradeScaleService(repository.NewGradeScaleRepository(db), cacheSvc, nil, cfg.Cache.ScaleTTL, logger.Component(logr, "grade_scales"))
	progress := service.NewProgressService(
		repository.NewTermRepository(db),
		repository.NewRosterRepository(db),
		repository.NewMarksRepository(db),
		repository.NewTermSummaryRepository(db),
		repository.NewStudentTrendRepository(db),
		scales,
		cacheSvc,
		nil,
		logger.Component(logr, "progress"),
		service.ProgressServiceConfig{
			CohortConcurrency:    cfg.Progress.CohortConcurrency,
			TieBasis:             grading.TieBasis(cfg.Grading.TieBasis),
			DefaultAcademicLevel: cfg.Grading.DefaultAcademicLevel,
			RankingTTL:           cfg.Cache.RankingTTL,
		},
	)
	return progress, cacheSvc
}
