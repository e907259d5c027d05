package dto

import (
	"time"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// GenerateProgressRequest captures POST /progress/generate payload. Leaving
// both ClassID and StudentID empty regenerates the whole academic year.
type GenerateProgressRequest struct {
	AcademicYear string `json:"academicYear" validate:"required,max=16"`
	ClassID      string `json:"classId" validate:"omitempty,excluded_with=StudentID"`
	StudentID    string `json:"studentId" validate:"omitempty,excluded_with=ClassID"`
}

// Scope reports which regeneration the request asks for.
func (r GenerateProgressRequest) Scope() models.ProgressScope {
	switch {
	case r.StudentID != "":
		return models.ProgressScopeStudent
	case r.ClassID != "":
		return models.ProgressScopeClass
	default:
		return models.ProgressScopeYear
	}
}

// ProgressJobResponse exposes job state to clients.
type ProgressJobResponse struct {
	ID           string                   `json:"id"`
	Scope        models.ProgressScope     `json:"scope"`
	AcademicYear string                   `json:"academicYear"`
	ClassID      string                   `json:"classId,omitempty"`
	StudentID    string                   `json:"studentId,omitempty"`
	Status       models.ProgressJobStatus `json:"status"`
	SuccessCount int                      `json:"successCount"`
	ErrorCount   int                      `json:"errorCount"`
	Errors       []models.BatchItemError  `json:"errors,omitempty"`
	Attempts     int                      `json:"attempts"`
	CreatedAt    time.Time                `json:"createdAt"`
	StartedAt    *time.Time               `json:"startedAt,omitempty"`
	FinishedAt   *time.Time               `json:"finishedAt,omitempty"`
	Error        *string                  `json:"error,omitempty"`
}

// NewProgressJobResponse maps a stored job for transport.
func NewProgressJobResponse(job *models.ProgressJob) ProgressJobResponse {
	return ProgressJobResponse{
		ID:           job.ID,
		Scope:        job.Scope,
		AcademicYear: job.AcademicYear,
		ClassID:      job.Params.ClassID,
		StudentID:    job.Params.StudentID,
		Status:       job.Status,
		SuccessCount: job.SuccessCount,
		ErrorCount:   job.ErrorCount,
		Errors:       job.Errors,
		Attempts:     job.Attempts,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		Error:        job.ErrorMessage,
	}
}
