package models

import "time"

// Term models an academic term within the institution calendar. Number orders
// terms inside their academic year.
type Term struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Number       int       `db:"term_number" json:"term_number"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	StartDate    time.Time `db:"start_date" json:"start_date"`
	EndDate      time.Time `db:"end_date" json:"end_date"`
}
