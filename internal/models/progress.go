package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/sma-progress-api/internal/grading"
)

// TermSummaryRecord is a stored, ranked term summary. Rows are keyed by
// (student_id, term_id) and only ever replaced wholesale by a regeneration run.
type TermSummaryRecord struct {
	ID string `db:"id" json:"id"`
	grading.TermSummary
	RunID       string    `db:"run_id" json:"run_id"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
}

// StudentTrendRecord stores the latest trend analysis of a student for a year.
type StudentTrendRecord struct {
	StudentID          string            `db:"student_id" json:"student_id"`
	AcademicYear       string            `db:"academic_year" json:"academic_year"`
	RiskLevel          grading.RiskLevel `db:"risk_level" json:"risk_level"`
	InterventionNeeded bool              `db:"intervention_needed" json:"intervention_needed"`
	Analysis           TrendAnalysis     `db:"analysis" json:"analysis"`
	RunID              string            `db:"run_id" json:"run_id"`
	GeneratedAt        time.Time         `db:"generated_at" json:"generated_at"`
}

// TrendAnalysis is the JSONB column holding a grading.StudentTrend.
type TrendAnalysis grading.StudentTrend

// Value marshals the analysis to JSON for persistence.
func (a TrendAnalysis) Value() (driver.Value, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal trend analysis: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the analysis.
func (a *TrendAnalysis) Scan(value interface{}) error {
	if value == nil {
		*a = TrendAnalysis{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TrendAnalysis", value)
	}
	if len(data) == 0 {
		*a = TrendAnalysis{}
		return nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("unmarshal trend analysis: %w", err)
	}
	return nil
}

// BatchItemError records one student that could not be processed.
type BatchItemError struct {
	StudentID string `json:"student_id"`
	ClassID   string `json:"class_id,omitempty"`
	TermID    string `json:"term_id,omitempty"`
	Message   string `json:"message"`
}

// BatchResult is the outcome of a regeneration run.
type BatchResult struct {
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Errors       BatchItemErrors `json:"errors"`
}

// Merge folds other into r.
func (r *BatchResult) Merge(other BatchResult) {
	r.SuccessCount += other.SuccessCount
	r.ErrorCount += other.ErrorCount
	r.Errors = append(r.Errors, other.Errors...)
}

// Fail records a failed item.
func (r *BatchResult) Fail(item BatchItemError) {
	r.ErrorCount++
	r.Errors = append(r.Errors, item)
}

// BatchItemErrors is the JSONB column form of item errors.
type BatchItemErrors []BatchItemError

// Value marshals the errors to JSON for persistence.
func (e BatchItemErrors) Value() (driver.Value, error) {
	if e == nil {
		e = BatchItemErrors{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal batch errors: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the errors.
func (e *BatchItemErrors) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for BatchItemErrors", value)
	}
	if len(data) == 0 {
		*e = nil
		return nil
	}
	if err := json.Unmarshal(data, e); err != nil {
		return fmt.Errorf("unmarshal batch errors: %w", err)
	}
	return nil
}

// StudentProgress is the read model served for one student.
type StudentProgress struct {
	StudentID    string              `json:"student_id"`
	AcademicYear string              `json:"academic_year"`
	Summaries    []TermSummaryRecord `json:"summaries"`
	Trend        *StudentTrendRecord `json:"trend,omitempty"`
}

// ClassRanking lists a class's ranked summaries for one term.
type ClassRanking struct {
	ClassID     string              `json:"class_id"`
	TermID      string              `json:"term_id"`
	Stream      string              `json:"stream,omitempty"`
	GeneratedAt *time.Time          `json:"generated_at,omitempty"`
	Entries     []ClassRankingEntry `json:"entries"`
}

// ClassRankingEntry is one row of a class ranking.
type ClassRankingEntry struct {
	StudentID         string  `json:"student_id"`
	AdmissionNumber   string  `json:"admission_number"`
	Stream            string  `json:"stream,omitempty"`
	MeanGradePoint    float64 `json:"mean_grade_point"`
	TotalMarks        float64 `json:"total_marks"`
	AveragePercentage float64 `json:"average_percentage"`
	OverallGrade      string  `json:"overall_grade"`
	ClassPosition     int     `json:"class_position"`
	ClassSize         int     `json:"class_size"`
	StreamPosition    int     `json:"stream_position"`
	StreamSize        int     `json:"stream_size"`
}

// ClassDistribution reports how a class's results spread over the scale.
type ClassDistribution struct {
	ClassID   string                     `json:"class_id"`
	TermID    string                     `json:"term_id"`
	SubjectID string                     `json:"subject_id,omitempty"`
	ScaleID   string                     `json:"scale_id"`
	Report    grading.DistributionReport `json:"report"`
}
