package models

// RosterStudent is an active enrollment of a student in a class for a year.
type RosterStudent struct {
	StudentID       string `db:"student_id" json:"student_id"`
	AdmissionNumber string `db:"admission_number" json:"admission_number"`
	FullName        string `db:"full_name" json:"full_name"`
	ClassID         string `db:"class_id" json:"class_id"`
	Stream          string `db:"stream" json:"stream"`
	AcademicYear    string `db:"academic_year" json:"academic_year"`
}
