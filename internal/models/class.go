package models

// Class represents a class (form) in an academic year. Streams are the parallel
// sections students are enrolled into.
type Class struct {
	ID            string `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	Grade         string `db:"grade" json:"grade"`
	AcademicLevel string `db:"academic_level" json:"academic_level"`
	AcademicYear  string `db:"academic_year" json:"academic_year"`
}
