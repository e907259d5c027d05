package dto

import "github.com/noah-isme/sma-progress-api/internal/grading"

// GradeRangeRequest is one row of a submitted grading table.
type GradeRangeRequest struct {
	Grade      string  `json:"grade" validate:"required,max=4"`
	MinPercent float64 `json:"minPercent"`
	MaxPercent float64 `json:"maxPercent"`
	Points     int     `json:"points" validate:"gte=0"`
	Label      string  `json:"label" validate:"max=64"`
}

// GradeScaleRequest captures POST /grade-scales and /grade-scales/validate payloads.
type GradeScaleRequest struct {
	Name              string                         `json:"name" validate:"required,max=120"`
	AcademicLevel     string                         `json:"academicLevel" validate:"required,max=32"`
	Ranges            []GradeRangeRequest            `json:"ranges" validate:"required,min=1,dive"`
	PassingGrade      string                         `json:"passingGrade" validate:"required"`
	PassingPercentage float64                        `json:"passingPercentage" validate:"gte=0,lte=100"`
	RoundingUnit      float64                        `json:"roundingUnit"`
	SubjectOverrides  map[string][]GradeRangeRequest `json:"subjectOverrides,omitempty" validate:"omitempty,dive,min=1,dive"`
	MakeDefault       bool                           `json:"makeDefault"`
}

// Scale converts the request into the grading engine's value.
func (r GradeScaleRequest) Scale() grading.GradeScale {
	scale := grading.GradeScale{
		Name:              r.Name,
		AcademicLevel:     r.AcademicLevel,
		Ranges:            toRanges(r.Ranges),
		PassingGrade:      r.PassingGrade,
		PassingPercentage: r.PassingPercentage,
		RoundingUnit:      grading.RoundingUnit(r.RoundingUnit),
	}
	if len(r.SubjectOverrides) > 0 {
		scale.SubjectOverrides = make(grading.SubjectOverrides, len(r.SubjectOverrides))
		for subjectID, ranges := range r.SubjectOverrides {
			scale.SubjectOverrides[subjectID] = toRanges(ranges)
		}
	}
	return scale.Normalized()
}

func toRanges(in []GradeRangeRequest) grading.GradeRanges {
	out := make(grading.GradeRanges, 0, len(in))
	for _, r := range in {
		out = append(out, grading.GradeRange{
			Grade:      r.Grade,
			MinPercent: r.MinPercent,
			MaxPercent: r.MaxPercent,
			Points:     r.Points,
			Label:      r.Label,
		})
	}
	return out
}

// ScaleValidationResponse reports every violation found in a scale.
type ScaleValidationResponse struct {
	Valid      bool                `json:"valid"`
	Violations []grading.Violation `json:"violations"`
}

// GradeLookupRequest captures POST /grade-scales/:id/lookup payload.
type GradeLookupRequest struct {
	Percentage *float64 `json:"percentage" validate:"required"`
	SubjectID  string   `json:"subjectId"`
}
