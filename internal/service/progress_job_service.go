package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/internal/repository"
	"github.com/noah-isme/sma-progress-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
	"github.com/noah-isme/sma-progress-api/pkg/jobs"
)

type progressJobStore interface {
	Create(ctx context.Context, job *models.ProgressJob) error
	GetByID(ctx context.Context, id string) (*models.ProgressJob, error)
	FindActiveByYear(ctx context.Context, academicYear string) (*models.ProgressJob, error)
	Update(ctx context.Context, params models.UpdateProgressJobParams) error
	ListPending(ctx context.Context, limit int) ([]models.ProgressJob, error)
	FailOrphaned(ctx context.Context, message string) (int64, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
	Cancel(id string) bool
}

// ProgressJobService turns regeneration requests into persisted, queued jobs.
type ProgressJobService struct {
	repo      progressJobStore
	queue     jobQueue
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProgressJobService constructs the service.
func NewProgressJobService(repo progressJobStore, queue jobQueue, validate *validator.Validate, logger *zap.Logger) *ProgressJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressJobService{repo: repo, queue: queue, validator: validate, logger: logger}
}

// Trigger persists and enqueues a regeneration job. When the academic year
// already has a pending or running job, that job is returned together with
// ErrJobInProgress.
func (s *ProgressJobService) Trigger(ctx context.Context, req dto.GenerateProgressRequest, actorID string) (*models.ProgressJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "academicYear is required and classId excludes studentId")
	}

	existing, err := s.repo.FindActiveByYear(ctx, req.AcademicYear)
	switch {
	case err == nil:
		return existing, jobInProgress(existing)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active progress jobs")
	}

	job := &models.ProgressJob{
		Scope:        req.Scope(),
		Params:       models.ProgressJobParams{ClassID: req.ClassID, StudentID: req.StudentID},
		AcademicYear: req.AcademicYear,
		Status:       models.ProgressJobPending,
		CreatedBy:    actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		if errors.Is(err, appErrors.ErrJobInProgress) {
			// Lost the race against a concurrent trigger.
			if existing, findErr := s.repo.FindActiveByYear(ctx, req.AcademicYear); findErr == nil {
				return existing, jobInProgress(existing)
			}
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create progress job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Scope)}); err != nil {
		status := models.ProgressJobFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, models.UpdateProgressJobParams{ID: job.ID, Status: &status, ErrorMessage: &msg, FinishedAt: &now})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue progress job")
	}

	s.logger.Info("progress job queued",
		zap.String("job_id", job.ID),
		zap.String("scope", string(job.Scope)),
		zap.String("academic_year", job.AcademicYear),
		zap.String("actor_id", actorID),
	)
	return job, nil
}

func jobInProgress(existing *models.ProgressJob) error {
	return appErrors.Clone(appErrors.ErrJobInProgress, fmt.Sprintf("job %s is already %s for academic year %s", existing.ID, existing.Status, existing.AcademicYear))
}

// Status returns the job.
func (s *ProgressJobService) Status(ctx context.Context, id string) (*models.ProgressJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "progress job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress job")
	}
	return job, nil
}

// Cancel aborts a job. A running job stops at the next student boundary and is
// marked cancelled by the worker; a pending job is marked cancelled here.
func (s *ProgressJobService) Cancel(ctx context.Context, id string) (*models.ProgressJob, error) {
	job, err := s.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, appErrors.Clone(appErrors.ErrJobFinished, fmt.Sprintf("progress job already %s", job.Status))
	}

	if s.queue.Cancel(id) {
		s.logger.Info("progress job cancellation requested", zap.String("job_id", id))
		return job, nil
	}

	status := models.ProgressJobCancelled
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, models.UpdateProgressJobParams{ID: id, Status: &status, FinishedAt: &now}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel progress job")
	}
	job.Status = status
	job.FinishedAt = &now
	s.logger.Info("progress job cancelled", zap.String("job_id", id))
	return job, nil
}

// Recover fails jobs a previous process left running and re-enqueues pending
// ones.
func (s *ProgressJobService) Recover(ctx context.Context) {
	if n, err := s.repo.FailOrphaned(ctx, "interrupted by service restart"); err != nil {
		s.logger.Warn("failed to close orphaned progress jobs", zap.Error(err))
	} else if n > 0 {
		s.logger.Warn("closed orphaned progress jobs", zap.Int64("count", n))
	}

	pending, err := s.repo.ListPending(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover pending progress jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Scope), Attempt: job.Attempts}); err != nil {
			s.logger.Warn("failed to requeue progress job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

type progressRunner interface {
	GenerateYear(ctx context.Context, academicYear string) (models.BatchResult, error)
	GenerateClass(ctx context.Context, classID, academicYear string) (models.BatchResult, error)
	GenerateStudent(ctx context.Context, studentID, academicYear string) (models.BatchResult, error)
}

type yearLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*repository.Lease, error)
}

// ProgressWorkerConfig tunes job execution.
type ProgressWorkerConfig struct {
	LockTTL    time.Duration
	MaxRetries int
}

// ProgressWorker executes queued jobs. Runs for the same academic year are
// serialized through a distributed lock.
type ProgressWorker struct {
	repo   progressJobStore
	runner progressRunner
	locker yearLocker
	logger *zap.Logger
	cfg    ProgressWorkerConfig
}

// NewProgressWorker constructs the worker.
func NewProgressWorker(repo progressJobStore, runner progressRunner, locker yearLocker, logger *zap.Logger, cfg ProgressWorkerConfig) *ProgressWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Hour
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &ProgressWorker{repo: repo, runner: runner, locker: locker, logger: logger, cfg: cfg}
}

func yearLockKey(academicYear string) string {
	return cache.Key("lock", "progress", academicYear)
}

// Handle runs one queued job. It satisfies jobs.Handler.
func (w *ProgressWorker) Handle(ctx context.Context, queued jobs.Job) error {
	log := w.logger.With(zap.String("job_id", queued.ID), zap.Int("attempt", queued.Attempt+1))
	job, err := w.repo.GetByID(ctx, queued.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("queued progress job no longer exists")
			return nil
		}
		return fmt.Errorf("load progress job: %w", err)
	}
	if job.Status.Terminal() {
		log.Info("skipping finished progress job", zap.String("status", string(job.Status)))
		return nil
	}
	log = log.With(zap.String("academic_year", job.AcademicYear), zap.String("scope", string(job.Scope)))

	lease, err := w.locker.Acquire(ctx, yearLockKey(job.AcademicYear), w.cfg.LockTTL)
	if err != nil {
		log.Warn("academic year locked, retrying later", zap.Error(err))
		return w.retryOrFail(ctx, job, queued, err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			log.Warn("failed to release progress lock", zap.Error(err))
		}
	}()

	now := time.Now().UTC()
	running := models.ProgressJobRunning
	attempts := queued.Attempt + 1
	if err := w.repo.Update(ctx, models.UpdateProgressJobParams{ID: job.ID, Status: &running, StartedAt: &now, Attempts: &attempts}); err != nil {
		return fmt.Errorf("mark progress job running: %w", err)
	}
	log.Info("progress job started")

	result, runErr := w.run(ctx, job)

	switch {
	case ctx.Err() != nil || errors.Is(runErr, context.Canceled):
		w.finish(job.ID, models.ProgressJobCancelled, result, "cancelled")
		log.Info("progress job cancelled", zap.Int("success_count", result.SuccessCount))
		return jobs.ErrCancelled
	case runErr == nil:
		w.finish(job.ID, models.ProgressJobSucceeded, result, "")
		log.Info("progress job finished", zap.Int("success_count", result.SuccessCount), zap.Int("error_count", result.ErrorCount))
		return nil
	case errors.Is(runErr, appErrors.ErrConfiguration), errors.Is(runErr, appErrors.ErrNotFound), errors.Is(runErr, appErrors.ErrValidation):
		w.finish(job.ID, models.ProgressJobFailed, result, runErr.Error())
		log.Error("progress job failed", zap.Error(runErr))
		return jobs.Permanent(runErr)
	default:
		log.Warn("progress job attempt failed", zap.Error(runErr))
		return w.retryOrFail(ctx, job, queued, runErr)
	}
}

func (w *ProgressWorker) run(ctx context.Context, job *models.ProgressJob) (models.BatchResult, error) {
	switch job.Scope {
	case models.ProgressScopeStudent:
		return w.runner.GenerateStudent(ctx, job.Params.StudentID, job.AcademicYear)
	case models.ProgressScopeClass:
		return w.runner.GenerateClass(ctx, job.Params.ClassID, job.AcademicYear)
	case models.ProgressScopeYear:
		return w.runner.GenerateYear(ctx, job.AcademicYear)
	default:
		return models.BatchResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown progress scope %q", job.Scope))
	}
}

// retryOrFail puts the job back to pending while retries remain, otherwise
// marks it failed.
func (w *ProgressWorker) retryOrFail(ctx context.Context, job *models.ProgressJob, queued jobs.Job, cause error) error {
	msg := cause.Error()
	if queued.Attempt >= w.cfg.MaxRetries {
		w.finish(job.ID, models.ProgressJobFailed, models.BatchResult{}, msg)
		return jobs.Permanent(cause)
	}
	pending := models.ProgressJobPending
	if err := w.repo.Update(ctx, models.UpdateProgressJobParams{ID: job.ID, Status: &pending, ErrorMessage: &msg}); err != nil {
		w.logger.Warn("failed to reset progress job", zap.String("job_id", job.ID), zap.Error(err))
	}
	return cause
}

// finish stores the terminal state. It uses a fresh context so a cancelled job
// still records its outcome.
func (w *ProgressWorker) finish(id string, status models.ProgressJobStatus, result models.BatchResult, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	errs := result.Errors
	if errs == nil {
		errs = models.BatchItemErrors{}
	}
	params := models.UpdateProgressJobParams{
		ID:           id,
		Status:       &status,
		SuccessCount: &result.SuccessCount,
		ErrorCount:   &result.ErrorCount,
		Errors:       &errs,
		FinishedAt:   &now,
	}
	if message != "" {
		params.ErrorMessage = &message
	}
	if err := w.repo.Update(ctx, params); err != nil {
		w.logger.Error("failed to store progress job outcome", zap.String("job_id", id), zap.String("status", string(status)), zap.Error(err))
	}
}
