package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/internal/repository"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
	"github.com/noah-isme/sma-progress-api/pkg/jobs"
)

type jobRepoStub struct {
	mu       sync.Mutex
	jobs     map[string]*models.ProgressJob
	seq      int
	updates  []models.UpdateProgressJobParams
	orphaned int64
	onCreate func(s *jobRepoStub) error
}

func newJobRepoStub() *jobRepoStub {
	return &jobRepoStub{jobs: map[string]*models.ProgressJob{}}
}

func (s *jobRepoStub) Create(ctx context.Context, job *models.ProgressJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onCreate != nil {
		if err := s.onCreate(s); err != nil {
			return err
		}
	}
	s.seq++
	job.ID = fmt.Sprintf("job-%d", s.seq)
	job.Status = models.ProgressJobPending
	job.CreatedAt = time.Now()
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *jobRepoStub) GetByID(ctx context.Context, id string) (*models.ProgressJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (s *jobRepoStub) FindActiveByYear(ctx context.Context, year string) (*models.ProgressJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.AcademicYear == year && !job.Status.Terminal() {
			copied := *job
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *jobRepoStub) Update(ctx context.Context, params models.UpdateProgressJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, params)
	job, ok := s.jobs[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.SuccessCount != nil {
		job.SuccessCount = *params.SuccessCount
	}
	if params.ErrorCount != nil {
		job.ErrorCount = *params.ErrorCount
	}
	if params.Errors != nil {
		job.Errors = *params.Errors
	}
	if params.Attempts != nil {
		job.Attempts = *params.Attempts
	}
	if params.StartedAt != nil {
		job.StartedAt = params.StartedAt
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	return nil
}

func (s *jobRepoStub) ListPending(ctx context.Context, limit int) ([]models.ProgressJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProgressJob
	for _, job := range s.jobs {
		if job.Status == models.ProgressJobPending {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *jobRepoStub) FailOrphaned(ctx context.Context, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, job := range s.jobs {
		if job.Status == models.ProgressJobRunning {
			job.Status = models.ProgressJobFailed
			msg := message
			job.ErrorMessage = &msg
			n++
		}
	}
	s.orphaned += n
	return n, nil
}

func (s *jobRepoStub) status(id string) models.ProgressJobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id].Status
}

type queueStub struct {
	enqueued   []jobs.Job
	running    map[string]bool
	enqueueErr error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *queueStub) Cancel(id string) bool {
	return q.running[id]
}

func TestProgressJobServiceTrigger(t *testing.T) {
	repo := newJobRepoStub()
	queue := &queueStub{}
	svc := NewProgressJobService(repo, queue, nil, nil)

	job, err := svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2024", ClassID: "f4"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressScopeClass, job.Scope)
	assert.Equal(t, "f4", job.Params.ClassID)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, jobs.Job{ID: job.ID, Type: "class"}, queue.enqueued[0])

	again, err := svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2024"}, "admin-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrJobInProgress))
	require.NotNil(t, again)
	assert.Equal(t, job.ID, again.ID)
	assert.Len(t, queue.enqueued, 1)

	_, err = svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2025", ClassID: "f4", StudentID: "s1"}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Trigger(context.Background(), dto.GenerateProgressRequest{}, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestProgressJobServiceTriggerLosesCreateRace(t *testing.T) {
	repo := newJobRepoStub()
	repo.onCreate = func(s *jobRepoStub) error {
		s.jobs["job-rival"] = &models.ProgressJob{ID: "job-rival", AcademicYear: "2024", Status: models.ProgressJobRunning}
		return appErrors.Clone(appErrors.ErrJobInProgress, "academic year 2024 already has an active job")
	}
	queue := &queueStub{}
	svc := NewProgressJobService(repo, queue, nil, nil)

	existing, err := svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2024"}, "admin-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrJobInProgress))
	require.NotNil(t, existing)
	assert.Equal(t, "job-rival", existing.ID)
	assert.Empty(t, queue.enqueued)
}

func TestProgressJobServiceTriggerEnqueueFailure(t *testing.T) {
	repo := newJobRepoStub()
	svc := NewProgressJobService(repo, &queueStub{enqueueErr: errors.New("queue not started")}, nil, nil)

	_, err := svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2024"}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, models.ProgressJobFailed, repo.status("job-1"))
}

func TestProgressJobServiceCancel(t *testing.T) {
	repo := newJobRepoStub()
	queue := &queueStub{running: map[string]bool{}}
	svc := NewProgressJobService(repo, queue, nil, nil)

	pending, err := svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2024"}, "admin-1")
	require.NoError(t, err)
	cancelled, err := svc.Cancel(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressJobCancelled, cancelled.Status)
	assert.Equal(t, models.ProgressJobCancelled, repo.status(pending.ID))

	_, err = svc.Cancel(context.Background(), pending.ID)
	assert.True(t, errors.Is(err, appErrors.ErrJobFinished))

	running, err := svc.Trigger(context.Background(), dto.GenerateProgressRequest{AcademicYear: "2025"}, "admin-1")
	require.NoError(t, err)
	queue.running[running.ID] = true
	_, err = svc.Cancel(context.Background(), running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressJobPending, repo.status(running.ID), "worker records the cancellation")

	_, err = svc.Cancel(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestProgressJobServiceRecover(t *testing.T) {
	repo := newJobRepoStub()
	repo.jobs["old"] = &models.ProgressJob{ID: "old", Status: models.ProgressJobRunning, Scope: models.ProgressScopeYear}
	repo.jobs["waiting"] = &models.ProgressJob{ID: "waiting", Status: models.ProgressJobPending, Scope: models.ProgressScopeStudent, Attempts: 2}
	queue := &queueStub{}
	svc := NewProgressJobService(repo, queue, nil, nil)

	svc.Recover(context.Background())

	assert.Equal(t, models.ProgressJobFailed, repo.status("old"))
	assert.EqualValues(t, 1, repo.orphaned)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, jobs.Job{ID: "waiting", Type: "student", Attempt: 2}, queue.enqueued[0])
}

type runnerStub struct {
	result models.BatchResult
	err    error
	calls  []string
	block  bool
}

func (r *runnerStub) GenerateYear(ctx context.Context, year string) (models.BatchResult, error) {
	r.calls = append(r.calls, "year:"+year)
	return r.outcome(ctx)
}

func (r *runnerStub) GenerateClass(ctx context.Context, classID, year string) (models.BatchResult, error) {
	r.calls = append(r.calls, "class:"+classID)
	return r.outcome(ctx)
}

func (r *runnerStub) GenerateStudent(ctx context.Context, studentID, year string) (models.BatchResult, error) {
	r.calls = append(r.calls, "student:"+studentID)
	return r.outcome(ctx)
}

func (r *runnerStub) outcome(ctx context.Context) (models.BatchResult, error) {
	if r.block {
		<-ctx.Done()
		return r.result, ctx.Err()
	}
	return r.result, r.err
}

type lockerStub struct {
	err  error
	keys []string
}

func (l *lockerStub) Acquire(ctx context.Context, key string, ttl time.Duration) (*repository.Lease, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return repository.NewLockRepository(nil).Acquire(ctx, key, ttl)
}

func seedJob(repo *jobRepoStub, scope models.ProgressScope) *models.ProgressJob {
	job := &models.ProgressJob{Scope: scope, AcademicYear: "2024", Params: models.ProgressJobParams{ClassID: "f4", StudentID: "s1"}}
	_ = repo.Create(context.Background(), job)
	return job
}

func TestProgressWorkerSucceeds(t *testing.T) {
	repo := newJobRepoStub()
	job := seedJob(repo, models.ProgressScopeClass)
	runner := &runnerStub{result: models.BatchResult{SuccessCount: 3, ErrorCount: 1, Errors: models.BatchItemErrors{{StudentID: "s9", Message: "bad marks"}}}}
	locker := &lockerStub{}
	worker := NewProgressWorker(repo, runner, locker, nil, ProgressWorkerConfig{MaxRetries: 2})

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.ProgressJobSucceeded, stored.Status)
	assert.Equal(t, 3, stored.SuccessCount)
	assert.Equal(t, 1, stored.ErrorCount)
	assert.Len(t, stored.Errors, 1)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.FinishedAt)
	assert.Equal(t, []string{"class:f4"}, runner.calls)
	assert.Equal(t, []string{"sma-progress:lock:progress:2024"}, locker.keys)
}

func TestProgressWorkerConfigurationFailureIsPermanent(t *testing.T) {
	repo := newJobRepoStub()
	job := seedJob(repo, models.ProgressScopeYear)
	runner := &runnerStub{err: appErrors.Clone(appErrors.ErrConfiguration, "no terms configured")}
	worker := NewProgressWorker(repo, runner, &lockerStub{}, nil, ProgressWorkerConfig{MaxRetries: 3})

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))

	stored, _ := repo.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.ProgressJobFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "no terms configured")
}

func TestProgressWorkerRetriesTransientFailure(t *testing.T) {
	repo := newJobRepoStub()
	job := seedJob(repo, models.ProgressScopeStudent)
	runner := &runnerStub{err: errors.New("connection reset")}
	worker := NewProgressWorker(repo, runner, &lockerStub{}, nil, ProgressWorkerConfig{MaxRetries: 1})

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.EqualError(t, err, "connection reset")
	assert.Equal(t, models.ProgressJobPending, repo.status(job.ID))

	err = worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ProgressJobFailed, repo.status(job.ID))
	assert.Equal(t, []string{"student:s1", "student:s1"}, runner.calls)
}

func TestProgressWorkerLockHeldRetries(t *testing.T) {
	repo := newJobRepoStub()
	job := seedJob(repo, models.ProgressScopeYear)
	runner := &runnerStub{}
	worker := NewProgressWorker(repo, runner, &lockerStub{err: appErrors.ErrLockNotAcquired}, nil, ProgressWorkerConfig{MaxRetries: 2})

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID})
	assert.True(t, errors.Is(err, appErrors.ErrLockNotAcquired))
	assert.Equal(t, models.ProgressJobPending, repo.status(job.ID))
	assert.Empty(t, runner.calls)
}

func TestProgressWorkerCancellation(t *testing.T) {
	repo := newJobRepoStub()
	job := seedJob(repo, models.ProgressScopeYear)
	runner := &runnerStub{block: true, result: models.BatchResult{SuccessCount: 2}}
	worker := NewProgressWorker(repo, runner, &lockerStub{}, nil, ProgressWorkerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Handle(ctx, jobs.Job{ID: job.ID}) }()

	assert.Eventually(t, func() bool { return repo.status(job.ID) == models.ProgressJobRunning }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, jobs.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	stored, _ := repo.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.ProgressJobCancelled, stored.Status)
	assert.Equal(t, 2, stored.SuccessCount)
}

func TestProgressWorkerSkipsFinishedJobs(t *testing.T) {
	repo := newJobRepoStub()
	job := seedJob(repo, models.ProgressScopeYear)
	status := models.ProgressJobCancelled
	require.NoError(t, repo.Update(context.Background(), models.UpdateProgressJobParams{ID: job.ID, Status: &status}))
	runner := &runnerStub{}
	worker := NewProgressWorker(repo, runner, &lockerStub{}, nil, ProgressWorkerConfig{})

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID}))
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "vanished"}))
	assert.Empty(t, runner.calls)
}
