package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type progressJobService interface {
	Trigger(ctx context.Context, req dto.GenerateProgressRequest, actorID string) (*models.ProgressJob, error)
	Status(ctx context.Context, id string) (*models.ProgressJob, error)
	Cancel(ctx context.Context, id string) (*models.ProgressJob, error)
}

type progressReader interface {
	StudentProgress(ctx context.Context, studentID, academicYear string) (*models.StudentProgress, error)
	ClassRanking(ctx context.Context, classID, termID, stream string) (*models.ClassRanking, error)
	ClassDistribution(ctx context.Context, classID, termID, subjectID string) (*models.ClassDistribution, error)
}

// ProgressHandler exposes regeneration jobs and the generated progress data.
type ProgressHandler struct {
	jobs     progressJobService
	progress progressReader
}

// NewProgressHandler builds a new handler.
func NewProgressHandler(jobs progressJobService, progress progressReader) *ProgressHandler {
	return &ProgressHandler{jobs: jobs, progress: progress}
}

// Generate godoc
// @Summary Queue progress regeneration
// @Description Regenerates term summaries, rankings and trends for a year, a class or one student.
// @Tags Progress
// @Accept json
// @Produce json
// @Param payload body dto.GenerateProgressRequest true "Regeneration scope"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /progress/generate [post]
func (h *ProgressHandler) Generate(c *gin.Context) {
	var req dto.GenerateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	job, err := h.jobs.Trigger(c.Request.Context(), req, actorID(c))
	if err != nil {
		if job != nil && errors.Is(err, appErrors.ErrJobInProgress) {
			response.ErrorWithMeta(c, err, map[string]interface{}{"jobId": job.ID, "status": job.Status})
			return
		}
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.NewProgressJobResponse(job), map[string]interface{}{"jobId": job.ID})
}

// JobStatus godoc
// @Summary Progress job status
// @Tags Progress
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /progress/jobs/{id} [get]
func (h *ProgressHandler) JobStatus(c *gin.Context) {
	job, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewProgressJobResponse(job), nil)
}

// CancelJob godoc
// @Summary Cancel a progress job
// @Tags Progress
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /progress/jobs/{id}/cancel [post]
func (h *ProgressHandler) CancelJob(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.NewProgressJobResponse(job), nil)
}

// StudentProgress godoc
// @Summary Student term summaries and trend
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Param academicYear query string false "Academic year; omitted returns every stored term"
// @Success 200 {object} response.Envelope
// @Router /progress/students/{id} [get]
func (h *ProgressHandler) StudentProgress(c *gin.Context) {
	progress, err := h.progress.StudentProgress(c.Request.Context(), c.Param("id"), c.Query("academicYear"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// ClassRanking godoc
// @Summary Class ranking for a term
// @Tags Progress
// @Produce json
// @Param id path string true "Class ID"
// @Param termId query string true "Term ID"
// @Param stream query string false "Stream filter"
// @Success 200 {object} response.Envelope
// @Router /progress/classes/{id}/rankings [get]
func (h *ProgressHandler) ClassRanking(c *gin.Context) {
	ranking, err := h.progress.ClassRanking(c.Request.Context(), c.Param("id"), c.Query("termId"), c.Query("stream"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ranking, nil)
}

// ClassDistribution godoc
// @Summary Grade distribution of a class for a term
// @Tags Progress
// @Produce json
// @Param id path string true "Class ID"
// @Param termId query string true "Term ID"
// @Param subjectId query string false "Subject; omitted uses overall averages"
// @Success 200 {object} response.Envelope
// @Router /progress/classes/{id}/distribution [get]
func (h *ProgressHandler) ClassDistribution(c *gin.Context) {
	dist, err := h.progress.ClassDistribution(c.Request.Context(), c.Param("id"), c.Query("termId"), c.Query("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dist, nil)
}
