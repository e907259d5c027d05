package models

import "github.com/noah-isme/sma-progress-api/internal/grading"

// AssessmentMark is one recorded assessment score joined with its subject.
type AssessmentMark struct {
	StudentID     string                      `db:"student_id" json:"student_id"`
	SubjectID     string                      `db:"subject_id" json:"subject_id"`
	SubjectName   string                      `db:"subject_name" json:"subject_name"`
	TermID        string                      `db:"term_id" json:"term_id"`
	Component     grading.AssessmentComponent `db:"component" json:"component"`
	MarksObtained float64                     `db:"marks_obtained" json:"marks_obtained"`
	MaxMarks      float64                     `db:"max_marks" json:"max_marks"`
}

// Score strips the mark down to what the aggregator needs.
func (m AssessmentMark) Score() grading.AssessmentScore {
	return grading.AssessmentScore{Component: m.Component, MarksObtained: m.MarksObtained, MaxMarks: m.MaxMarks}
}

// MarkFilter scopes mark queries.
type MarkFilter struct {
	TermID     string
	StudentIDs []string
}
