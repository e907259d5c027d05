package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type gradeScaleService interface {
	List(ctx context.Context, filter models.GradeScaleFilter) ([]models.GradeScaleRecord, error)
	Get(ctx context.Context, id string) (*models.GradeScaleRecord, error)
	Validate(req dto.GradeScaleRequest) (*dto.ScaleValidationResponse, error)
	Create(ctx context.Context, req dto.GradeScaleRequest, actorID string) (*models.GradeScaleRecord, error)
	SetDefault(ctx context.Context, id string) (*models.GradeScaleRecord, error)
	Lookup(ctx context.Context, id string, req dto.GradeLookupRequest) (*grading.GradeInfo, error)
}

// GradeScaleHandler exposes grading table endpoints.
type GradeScaleHandler struct {
	service gradeScaleService
}

// NewGradeScaleHandler builds a new handler.
func NewGradeScaleHandler(service gradeScaleService) *GradeScaleHandler {
	return &GradeScaleHandler{service: service}
}

// List godoc
// @Summary List grade scales
// @Tags GradeScales
// @Produce json
// @Param academicLevel query string false "Academic level"
// @Param default query bool false "Only default scales"
// @Success 200 {object} response.Envelope
// @Router /grade-scales [get]
func (h *GradeScaleHandler) List(c *gin.Context) {
	filter := models.GradeScaleFilter{AcademicLevel: c.Query("academicLevel")}
	if raw := c.Query("default"); raw != "" {
		defaultOnly, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "default must be a boolean"))
			return
		}
		filter.DefaultOnly = defaultOnly
	}
	scales, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scales, nil)
}

// Get godoc
// @Summary Get grade scale
// @Tags GradeScales
// @Produce json
// @Param id path string true "Scale ID"
// @Success 200 {object} response.Envelope
// @Router /grade-scales/{id} [get]
func (h *GradeScaleHandler) Get(c *gin.Context) {
	scale, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// Create godoc
// @Summary Create grade scale version
// @Tags GradeScales
// @Accept json
// @Produce json
// @Param payload body dto.GradeScaleRequest true "Scale payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /grade-scales [post]
func (h *GradeScaleHandler) Create(c *gin.Context) {
	var req dto.GradeScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade scale payload"))
		return
	}
	scale, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, scale)
}

// Validate godoc
// @Summary Validate a grade scale without storing it
// @Tags GradeScales
// @Accept json
// @Produce json
// @Param payload body dto.GradeScaleRequest true "Scale payload"
// @Success 200 {object} response.Envelope
// @Router /grade-scales/validate [post]
func (h *GradeScaleHandler) Validate(c *gin.Context) {
	var req dto.GradeScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade scale payload"))
		return
	}
	result, err := h.service.Validate(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SetDefault godoc
// @Summary Make a scale the default of its academic level
// @Tags GradeScales
// @Produce json
// @Param id path string true "Scale ID"
// @Success 200 {object} response.Envelope
// @Router /grade-scales/{id}/default [post]
func (h *GradeScaleHandler) SetDefault(c *gin.Context) {
	scale, err := h.service.SetDefault(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// Lookup godoc
// @Summary Grade a percentage against a scale
// @Tags GradeScales
// @Accept json
// @Produce json
// @Param id path string true "Scale ID"
// @Param payload body dto.GradeLookupRequest true "Lookup payload"
// @Success 200 {object} response.Envelope
// @Router /grade-scales/{id}/lookup [post]
func (h *GradeScaleHandler) Lookup(c *gin.Context) {
	var req dto.GradeLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lookup payload"))
		return
	}
	info, err := h.service.Lookup(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
