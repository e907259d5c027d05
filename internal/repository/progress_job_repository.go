package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

// activeJobConstraint is the partial unique index allowing one pending or
// running job per academic year.
const activeJobConstraint = "uq_progress_jobs_active_year"

const progressJobColumns = `id, scope, params, academic_year, status, success_count, error_count, errors, attempts, created_by, created_at, started_at, finished_at, error_message`

// ProgressJobRepository persists regeneration job state.
type ProgressJobRepository struct {
	db *sqlx.DB
}

// NewProgressJobRepository constructs the repository.
func NewProgressJobRepository(db *sqlx.DB) *ProgressJobRepository {
	return &ProgressJobRepository{db: db}
}

// Create inserts a new job row with generated defaults. A second active job
// for the same academic year fails with ErrJobInProgress.
func (r *ProgressJobRepository) Create(ctx context.Context, job *models.ProgressJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ProgressJobPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO progress_jobs (` + progressJobColumns + `)
VALUES (:id, :scope, :params, :academic_year, :status, :success_count, :error_count, :errors, :attempts, :created_by, :created_at, :started_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == activeJobConstraint {
			return appErrors.Clone(appErrors.ErrJobInProgress, fmt.Sprintf("academic year %s already has an active job", job.AcademicYear))
		}
		return fmt.Errorf("create progress job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ProgressJobRepository) GetByID(ctx context.Context, id string) (*models.ProgressJob, error) {
	const query = `SELECT ` + progressJobColumns + ` FROM progress_jobs WHERE id = $1`
	var job models.ProgressJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get progress job: %w", err)
	}
	return &job, nil
}

// FindActiveByYear returns the oldest pending or running job for year.
func (r *ProgressJobRepository) FindActiveByYear(ctx context.Context, year string) (*models.ProgressJob, error) {
	const query = `SELECT ` + progressJobColumns + ` FROM progress_jobs
WHERE academic_year = $1 AND status IN ('PENDING', 'RUNNING') ORDER BY created_at ASC LIMIT 1`
	var job models.ProgressJob
	if err := r.db.GetContext(ctx, &job, query, year); err != nil {
		return nil, fmt.Errorf("find active progress job: %w", err)
	}
	return &job, nil
}

// Update persists the provided changes for a job row.
func (r *ProgressJobRepository) Update(ctx context.Context, params models.UpdateProgressJobParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.SuccessCount != nil {
		add("success_count", *params.SuccessCount)
	}
	if params.ErrorCount != nil {
		add("error_count", *params.ErrorCount)
	}
	if params.Errors != nil {
		add("errors", *params.Errors)
	}
	if params.Attempts != nil {
		add("attempts", *params.Attempts)
	}
	if params.StartedAt != nil {
		add("started_at", *params.StartedAt)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, params.ID)
	query := fmt.Sprintf("UPDATE progress_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update progress job: %w", err)
	}
	return nil
}

// ListPending fetches pending jobs (used for cold start recovery).
func (r *ProgressJobRepository) ListPending(ctx context.Context, limit int) ([]models.ProgressJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT ` + progressJobColumns + ` FROM progress_jobs WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.ProgressJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list pending progress jobs: %w", err)
	}
	return jobs, nil
}

// FailOrphaned marks jobs left RUNNING by a crashed process as failed.
func (r *ProgressJobRepository) FailOrphaned(ctx context.Context, message string) (int64, error) {
	const query = `UPDATE progress_jobs SET status = 'FAILED', error_message = $1, finished_at = $2 WHERE status = 'RUNNING'`
	res, err := r.db.ExecContext(ctx, query, message, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail orphaned progress jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
