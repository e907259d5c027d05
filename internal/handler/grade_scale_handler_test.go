package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type gradeScaleServiceMock struct {
	filter    models.GradeScaleFilter
	createErr error
	actor     string
}

func (m *gradeScaleServiceMock) List(ctx context.Context, filter models.GradeScaleFilter) ([]models.GradeScaleRecord, error) {
	m.filter = filter
	return []models.GradeScaleRecord{}, nil
}

func (m *gradeScaleServiceMock) Get(ctx context.Context, id string) (*models.GradeScaleRecord, error) {
	return &models.GradeScaleRecord{ID: id}, nil
}

func (m *gradeScaleServiceMock) Validate(req dto.GradeScaleRequest) (*dto.ScaleValidationResponse, error) {
	return &dto.ScaleValidationResponse{Valid: false, Violations: []grading.Violation{{Grade: "B", Message: "overlaps A"}}}, nil
}

func (m *gradeScaleServiceMock) Create(ctx context.Context, req dto.GradeScaleRequest, actorID string) (*models.GradeScaleRecord, error) {
	m.actor = actorID
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.GradeScaleRecord{ID: "scale-1", Name: req.Name}, nil
}

func (m *gradeScaleServiceMock) SetDefault(ctx context.Context, id string) (*models.GradeScaleRecord, error) {
	return &models.GradeScaleRecord{ID: id, IsDefault: true}, nil
}

func (m *gradeScaleServiceMock) Lookup(ctx context.Context, id string, req dto.GradeLookupRequest) (*grading.GradeInfo, error) {
	info := grading.KenyanScale().Lookup(*req.Percentage, req.SubjectID)
	return &info, nil
}

func newGradeScaleRouter(svc *gradeScaleServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewGradeScaleHandler(svc)
	router := gin.New()
	router.GET("/grade-scales", h.List)
	router.POST("/grade-scales", h.Create)
	router.POST("/grade-scales/validate", h.Validate)
	router.GET("/grade-scales/:id", h.Get)
	router.POST("/grade-scales/:id/default", h.SetDefault)
	router.POST("/grade-scales/:id/lookup", h.Lookup)
	return router
}

func TestGradeScaleHandlerList(t *testing.T) {
	svc := &gradeScaleServiceMock{}
	router := newGradeScaleRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/grade-scales?academicLevel=SECONDARY&default=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.GradeScaleFilter{AcademicLevel: "SECONDARY", DefaultOnly: true}, svc.filter)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/grade-scales?default=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradeScaleHandlerCreate(t *testing.T) {
	svc := &gradeScaleServiceMock{}
	router := newGradeScaleRouter(svc)

	w := postJSON(router, "/grade-scales", dto.GradeScaleRequest{Name: "KCSE"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "system", svc.actor)

	svc.createErr = appErrors.WithDetails(appErrors.ErrScaleInvalid, "", []grading.Violation{{Message: "at least one grade range is required"}})
	w = postJSON(router, "/grade-scales", dto.GradeScaleRequest{Name: "KCSE"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, appErrors.ErrScaleInvalid.Code, env.Error.Code)
	assert.NotNil(t, env.Error.Details)
}

func TestGradeScaleHandlerValidateAndLookup(t *testing.T) {
	router := newGradeScaleRouter(&gradeScaleServiceMock{})

	w := postJSON(router, "/grade-scales/validate", dto.GradeScaleRequest{Name: "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	pct := 85.0
	w = postJSON(router, "/grade-scales/scale-1/lookup", dto.GradeLookupRequest{Percentage: &pct})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"grade":"A"`)

	w = postJSON(router, "/grade-scales/scale-1/default", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_default":true`)
}
