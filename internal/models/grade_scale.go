package models

import (
	"time"

	"github.com/noah-isme/sma-progress-api/internal/grading"
)

// GradeScaleRecord is a persisted grading table. Exactly one record per academic
// level carries IsDefault; the repository flips it inside a transaction.
type GradeScaleRecord struct {
	ID                string                   `db:"id" json:"id"`
	Name              string                   `db:"name" json:"name"`
	Version           int                      `db:"version" json:"version"`
	AcademicLevel     string                   `db:"academic_level" json:"academic_level"`
	Ranges            grading.GradeRanges      `db:"ranges" json:"ranges"`
	PassingGrade      string                   `db:"passing_grade" json:"passing_grade"`
	PassingPercentage float64                  `db:"passing_percentage" json:"passing_percentage"`
	RoundingUnit      float64                  `db:"rounding_unit" json:"rounding_unit"`
	SubjectOverrides  grading.SubjectOverrides `db:"subject_overrides" json:"subject_overrides,omitempty"`
	IsDefault         bool                     `db:"is_default" json:"is_default"`
	CreatedBy         string                   `db:"created_by" json:"created_by"`
	CreatedAt         time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                `db:"updated_at" json:"updated_at"`
}

// Scale converts the record into the value the grading engine consumes.
func (r GradeScaleRecord) Scale() grading.GradeScale {
	return grading.GradeScale{
		ID:                r.ID,
		Name:              r.Name,
		Version:           r.Version,
		AcademicLevel:     r.AcademicLevel,
		Ranges:            r.Ranges,
		PassingGrade:      r.PassingGrade,
		PassingPercentage: r.PassingPercentage,
		RoundingUnit:      grading.RoundingUnit(r.RoundingUnit),
		SubjectOverrides:  r.SubjectOverrides,
	}.Normalized()
}

// NewGradeScaleRecord builds a record from a validated scale.
func NewGradeScaleRecord(scale grading.GradeScale) GradeScaleRecord {
	scale = scale.Normalized()
	return GradeScaleRecord{
		ID:                scale.ID,
		Name:              scale.Name,
		Version:           scale.Version,
		AcademicLevel:     scale.AcademicLevel,
		Ranges:            scale.Ranges,
		PassingGrade:      scale.PassingGrade,
		PassingPercentage: scale.PassingPercentage,
		RoundingUnit:      float64(scale.RoundingUnit),
		SubjectOverrides:  scale.SubjectOverrides,
	}
}

// GradeScaleFilter narrows scale listings.
type GradeScaleFilter struct {
	AcademicLevel string
	DefaultOnly   bool
}
