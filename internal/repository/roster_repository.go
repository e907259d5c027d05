package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// RosterRepository reads classes and enrollments maintained by the records
// service. It never writes.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

const rosterSelect = `SELECT s.id AS student_id, s.admission_number, s.full_name, e.class_id, COALESCE(e.stream, '') AS stream, c.academic_year
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id`

// ListActiveByClass returns the active enrollments of a class ordered by
// admission number.
func (r *RosterRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.RosterStudent, error) {
	const query = rosterSelect + `
WHERE e.class_id = $1 AND e.status = 'ACTIVE' AND s.active = TRUE
ORDER BY s.admission_number ASC, s.id ASC`
	var roster []models.RosterStudent
	if err := r.db.SelectContext(ctx, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return roster, nil
}

// GetStudent returns the active enrollment of a student within an academic year.
func (r *RosterRepository) GetStudent(ctx context.Context, studentID, academicYear string) (*models.RosterStudent, error) {
	const query = rosterSelect + `
WHERE e.student_id = $1 AND c.academic_year = $2 AND e.status = 'ACTIVE'
LIMIT 1`
	var student models.RosterStudent
	if err := r.db.GetContext(ctx, &student, query, studentID, academicYear); err != nil {
		return nil, fmt.Errorf("get enrolled student: %w", err)
	}
	return &student, nil
}

// GetClass fetches a class by id.
func (r *RosterRepository) GetClass(ctx context.Context, classID string) (*models.Class, error) {
	const query = `SELECT id, name, grade, academic_level, academic_year FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, classID); err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &class, nil
}

// ListClassesByYear returns every class of an academic year.
func (r *RosterRepository) ListClassesByYear(ctx context.Context, academicYear string) ([]models.Class, error) {
	const query = `SELECT id, name, grade, academic_level, academic_year FROM classes WHERE academic_year = $1 ORDER BY grade ASC, name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, academicYear); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}
