package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// MarksRepository reads raw assessment marks.
type MarksRepository struct {
	db *sqlx.DB
}

// NewMarksRepository constructs the repository.
func NewMarksRepository(db *sqlx.DB) *MarksRepository {
	return &MarksRepository{db: db}
}

// List returns the marks recorded in a term for the filtered students, ordered
// so each student's marks are contiguous.
func (r *MarksRepository) List(ctx context.Context, filter models.MarkFilter) ([]models.AssessmentMark, error) {
	if filter.TermID == "" || len(filter.StudentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT a.student_id, a.subject_id, sub.name AS subject_name, a.term_id, a.component, a.marks_obtained, a.max_marks
FROM assessment_scores a
JOIN subjects sub ON sub.id = a.subject_id
WHERE a.term_id = ? AND a.student_id IN (?)
ORDER BY a.student_id ASC, a.subject_id ASC, a.component ASC`, filter.TermID, filter.StudentIDs)
	if err != nil {
		return nil, fmt.Errorf("build marks query: %w", err)
	}

	var marks []models.AssessmentMark
	if err := r.db.SelectContext(ctx, &marks, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list assessment marks: %w", err)
	}
	return marks, nil
}
