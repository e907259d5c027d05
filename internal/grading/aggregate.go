package grading

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// AssessmentComponent names one assessment within a term.
type AssessmentComponent string

const (
	ComponentOpener  AssessmentComponent = "OPENER"
	ComponentCAT1    AssessmentComponent = "CAT1"
	ComponentCAT2    AssessmentComponent = "CAT2"
	ComponentMidTerm AssessmentComponent = "MIDTERM"
	ComponentEndTerm AssessmentComponent = "ENDTERM"
)

// AssessmentScore is one raw mark.
type AssessmentScore struct {
	Component     AssessmentComponent `json:"component" db:"component"`
	MarksObtained float64             `json:"marks_obtained" db:"marks_obtained"`
	MaxMarks      float64             `json:"max_marks" db:"max_marks"`
}

// SubjectResult is the graded outcome of one subject for one student and term.
type SubjectResult struct {
	SubjectID     string            `json:"subject_id"`
	SubjectName   string            `json:"subject_name,omitempty"`
	TotalMarks    float64           `json:"total_marks"`
	TotalMaxMarks float64           `json:"total_max_marks"`
	Percentage    float64           `json:"percentage"`
	Grade         string            `json:"grade"`
	Points        int               `json:"points"`
	OutOfRange    bool              `json:"out_of_range,omitempty"`
	Components    []AssessmentScore `json:"components,omitempty"`
}

// SubjectResults is the JSON column form of a summary's subject results.
type SubjectResults []SubjectResult

// Value marshals the results to JSON for persistence.
func (r SubjectResults) Value() (driver.Value, error) {
	if r == nil {
		r = SubjectResults{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal subject results: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the results.
func (r *SubjectResults) Scan(value interface{}) error {
	return scanJSON(value, r, "subject results")
}

// TermSummary aggregates one student's subject results for one term. Identity
// fields are set by the caller; aggregate fields come from ComputeTermSummary and
// position fields from ApplyPositions.
type TermSummary struct {
	StudentID         string         `json:"student_id" db:"student_id"`
	AdmissionNumber   string         `json:"admission_number" db:"admission_number"`
	ClassID           string         `json:"class_id" db:"class_id"`
	Stream            string         `json:"stream,omitempty" db:"stream"`
	AcademicYear      string         `json:"academic_year" db:"academic_year"`
	TermID            string         `json:"term_id" db:"term_id"`
	TermNumber        int            `json:"term_number" db:"term_number"`
	TotalMarks        float64        `json:"total_marks" db:"total_marks"`
	TotalMaxMarks     float64        `json:"total_max_marks" db:"total_max_marks"`
	AveragePercentage float64        `json:"average_percentage" db:"average_percentage"`
	MeanGradePoint    float64        `json:"mean_grade_point" db:"mean_grade_point"`
	OverallGrade      string         `json:"overall_grade" db:"overall_grade"`
	PassedSubjects    int            `json:"passed_subjects" db:"passed_subjects"`
	SubjectResults    SubjectResults `json:"subject_results" db:"subject_results"`
	ClassPosition     int            `json:"class_position" db:"class_position"`
	ClassSize         int            `json:"class_size" db:"class_size"`
	StreamPosition    int            `json:"stream_position" db:"stream_position"`
	StreamSize        int            `json:"stream_size" db:"stream_size"`
}

// ComputeSubjectResult sums the component marks of one subject and grades the
// resulting percentage. No scores yields a zero result rather than an error.
func ComputeSubjectResult(scores []AssessmentScore, scale GradeScale, subjectID string) (SubjectResult, error) {
	result := SubjectResult{SubjectID: subjectID}
	components := make([]AssessmentScore, 0, len(scores))
	for _, score := range scores {
		if err := checkScore(subjectID, score); err != nil {
			return SubjectResult{}, err
		}
		result.TotalMarks += score.MarksObtained
		result.TotalMaxMarks += score.MaxMarks
		components = append(components, score)
	}
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].Component < components[j].Component
	})
	if len(components) > 0 {
		result.Components = components
	}

	result.Percentage = percentage(result.TotalMarks, result.TotalMaxMarks)
	info := scale.Lookup(result.Percentage, subjectID)
	result.Grade = info.Grade
	result.Points = info.Points
	result.OutOfRange = info.OutOfRange
	return result, nil
}

func checkScore(subjectID string, score AssessmentScore) error {
	switch {
	case math.IsNaN(score.MarksObtained) || math.IsInf(score.MarksObtained, 0) ||
		math.IsNaN(score.MaxMarks) || math.IsInf(score.MaxMarks, 0):
		return &DataError{SubjectID: subjectID, Component: score.Component, Reason: "marks must be finite numbers"}
	case score.MarksObtained < 0:
		return &DataError{SubjectID: subjectID, Component: score.Component, Reason: fmt.Sprintf("negative marks %g", score.MarksObtained)}
	case score.MaxMarks < 0:
		return &DataError{SubjectID: subjectID, Component: score.Component, Reason: fmt.Sprintf("negative max marks %g", score.MaxMarks)}
	case score.MarksObtained > score.MaxMarks:
		return &DataError{SubjectID: subjectID, Component: score.Component, Reason: fmt.Sprintf("marks %g exceed max %g", score.MarksObtained, score.MaxMarks)}
	}
	return nil
}

// ComputeTermSummary folds subject results into the aggregate fields of a term
// summary. Results are ordered by subject id so equal inputs give equal output.
// Zero results produce an all-zero summary graded at 0%.
func ComputeTermSummary(results []SubjectResult, scale GradeScale) TermSummary {
	ordered := make(SubjectResults, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubjectID < ordered[j].SubjectID
	})

	var summary TermSummary
	points := 0
	for _, r := range ordered {
		summary.TotalMarks += r.TotalMarks
		summary.TotalMaxMarks += r.TotalMaxMarks
		points += r.Points
		if scale.IsPassingFor(r.Grade, r.SubjectID) {
			summary.PassedSubjects++
		}
	}
	summary.AveragePercentage = percentage(summary.TotalMarks, summary.TotalMaxMarks)
	if len(ordered) > 0 {
		summary.MeanGradePoint = float64(points) / float64(len(ordered))
	}
	summary.OverallGrade = scale.Lookup(summary.AveragePercentage, "").Grade
	summary.SubjectResults = ordered
	return summary
}

// WithIdentity copies the identity fields of id onto s.
func (s TermSummary) WithIdentity(id TermSummary) TermSummary {
	s.StudentID = id.StudentID
	s.AdmissionNumber = id.AdmissionNumber
	s.ClassID = id.ClassID
	s.Stream = id.Stream
	s.AcademicYear = id.AcademicYear
	s.TermID = id.TermID
	s.TermNumber = id.TermNumber
	return s
}
