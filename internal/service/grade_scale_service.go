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
	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type gradeScaleStore interface {
	List(ctx context.Context, filter models.GradeScaleFilter) ([]models.GradeScaleRecord, error)
	GetByID(ctx context.Context, id string) (*models.GradeScaleRecord, error)
	FindDefault(ctx context.Context, academicLevel string) (*models.GradeScaleRecord, error)
	Create(ctx context.Context, record *models.GradeScaleRecord) error
	SetDefault(ctx context.Context, id string) (*models.GradeScaleRecord, error)
}

type readThroughCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Invalidate(ctx context.Context, pattern string) error
}

// GradeScaleService manages grading tables and resolves the default scale the
// engine is handed for an academic level.
type GradeScaleService struct {
	repo      gradeScaleStore
	cache     readThroughCache
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewGradeScaleService constructs the service. cache may be nil.
func NewGradeScaleService(repo gradeScaleStore, cache readThroughCache, validate *validator.Validate, cacheTTL time.Duration, logger *zap.Logger) *GradeScaleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeScaleService{repo: repo, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

func defaultScaleKey(academicLevel string) string {
	return cache.Key("scale", "default", academicLevel)
}

// List returns stored scales.
func (s *GradeScaleService) List(ctx context.Context, filter models.GradeScaleFilter) ([]models.GradeScaleRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade scales")
	}
	if records == nil {
		records = []models.GradeScaleRecord{}
	}
	return records, nil
}

// Get returns a scale by id.
func (s *GradeScaleService) Get(ctx context.Context, id string) (*models.GradeScaleRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade scale not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade scale")
	}
	return record, nil
}

// Validate checks a submitted scale and reports every violation.
func (s *GradeScaleService) Validate(req dto.GradeScaleRequest) (*dto.ScaleValidationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	resp := &dto.ScaleValidationResponse{Valid: true, Violations: []grading.Violation{}}
	var invalid *grading.ValidationError
	if err := req.Scale().Validate(); errors.As(err, &invalid) {
		resp.Valid = false
		resp.Violations = invalid.Violations
	}
	return resp, nil
}

// Create validates and stores a new scale version, optionally making it the
// default for its academic level.
func (s *GradeScaleService) Create(ctx context.Context, req dto.GradeScaleRequest, actorID string) (*models.GradeScaleRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	scale := req.Scale()
	if err := scale.Validate(); err != nil {
		return nil, scaleInvalid(err)
	}

	record := models.NewGradeScaleRecord(scale)
	record.CreatedBy = actorID
	if err := s.repo.Create(ctx, &record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade scale")
	}
	s.logger.Info("grade scale created",
		zap.String("scale_id", record.ID),
		zap.String("academic_level", record.AcademicLevel),
		zap.Int("version", record.Version),
		zap.String("actor_id", actorID),
	)

	if req.MakeDefault {
		return s.SetDefault(ctx, record.ID)
	}
	return &record, nil
}

// SetDefault makes id the default scale of its academic level.
func (s *GradeScaleService) SetDefault(ctx context.Context, id string) (*models.GradeScaleRecord, error) {
	record, err := s.repo.SetDefault(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade scale not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set default grade scale")
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, defaultScaleKey(record.AcademicLevel))
	}
	s.logger.Info("default grade scale changed", zap.String("scale_id", id), zap.String("academic_level", record.AcademicLevel))
	return record, nil
}

// ResolveDefault returns the validated default scale for academicLevel. A
// missing or invalid scale is a configuration error.
func (s *GradeScaleService) ResolveDefault(ctx context.Context, academicLevel string) (grading.GradeScale, error) {
	key := defaultScaleKey(academicLevel)
	var scale grading.GradeScale
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &scale); hit {
			return scale, nil
		}
	}

	record, err := s.repo.FindDefault(ctx, academicLevel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.GradeScale{}, configurationFailure(&grading.ConfigurationError{
				Resource: "grade_scale",
				Reason:   fmt.Sprintf("no default grade scale for academic level %q", academicLevel),
			})
		}
		return grading.GradeScale{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve grade scale")
	}

	scale = record.Scale()
	if err := scale.Validate(); err != nil {
		return grading.GradeScale{}, configurationFailure(&grading.ConfigurationError{
			Resource: "grade_scale",
			Reason:   fmt.Sprintf("default scale %s is invalid: %v", record.ID, err),
		})
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, scale, s.cacheTTL)
	}
	return scale, nil
}

// Lookup grades a percentage against a stored scale.
func (s *GradeScaleService) Lookup(ctx context.Context, id string, req dto.GradeLookupRequest) (*grading.GradeInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "percentage is required")
	}
	if *req.Percentage < 0 || *req.Percentage > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "percentage must be within [0,100]")
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	info := record.Scale().Lookup(*req.Percentage, req.SubjectID)
	return &info, nil
}

func scaleInvalid(err error) error {
	var invalid *grading.ValidationError
	if errors.As(err, &invalid) {
		return appErrors.WithDetails(appErrors.ErrScaleInvalid, "", invalid.Violations)
	}
	return appErrors.Wrap(err, appErrors.ErrScaleInvalid.Code, appErrors.ErrScaleInvalid.Status, appErrors.ErrScaleInvalid.Message)
}

func configurationFailure(err *grading.ConfigurationError) error {
	return appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, err.Error())
}
