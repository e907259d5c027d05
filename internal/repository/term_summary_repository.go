package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/database"
)

const termSummaryColumns = `id, student_id, admission_number, class_id, stream, academic_year, term_id, term_number,
total_marks, total_max_marks, average_percentage, mean_grade_point, overall_grade, passed_subjects, subject_results,
class_position, class_size, stream_position, stream_size, run_id, generated_at`

const upsertTermSummary = `INSERT INTO term_summaries (` + termSummaryColumns + `)
VALUES (:id, :student_id, :admission_number, :class_id, :stream, :academic_year, :term_id, :term_number,
:total_marks, :total_max_marks, :average_percentage, :mean_grade_point, :overall_grade, :passed_subjects, :subject_results,
:class_position, :class_size, :stream_position, :stream_size, :run_id, :generated_at)
ON CONFLICT (student_id, term_id)
DO UPDATE SET admission_number = EXCLUDED.admission_number, class_id = EXCLUDED.class_id, stream = EXCLUDED.stream,
              academic_year = EXCLUDED.academic_year, term_number = EXCLUDED.term_number,
              total_marks = EXCLUDED.total_marks, total_max_marks = EXCLUDED.total_max_marks,
              average_percentage = EXCLUDED.average_percentage, mean_grade_point = EXCLUDED.mean_grade_point,
              overall_grade = EXCLUDED.overall_grade, passed_subjects = EXCLUDED.passed_subjects,
              subject_results = EXCLUDED.subject_results, class_position = EXCLUDED.class_position,
              class_size = EXCLUDED.class_size, stream_position = EXCLUDED.stream_position,
              stream_size = EXCLUDED.stream_size, run_id = EXCLUDED.run_id, generated_at = EXCLUDED.generated_at`

// TermSummaryRepository stores ranked term summaries.
type TermSummaryRepository struct {
	db *sqlx.DB
}

// NewTermSummaryRepository constructs the repository.
func NewTermSummaryRepository(db *sqlx.DB) *TermSummaryRepository {
	return &TermSummaryRepository{db: db}
}

// ReplaceCohort swaps the stored summaries of one (class, term) cohort for the
// provided records in a single transaction. Readers see either the previous
// cohort or the new one.
func (r *TermSummaryRepository) ReplaceCohort(ctx context.Context, classID, termID string, records []models.TermSummaryRecord) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM term_summaries WHERE class_id = $1 AND term_id = $2`, classID, termID); err != nil {
			return fmt.Errorf("clear term summaries: %w", err)
		}
		now := time.Now().UTC()
		for i := range records {
			if records[i].ID == "" {
				records[i].ID = uuid.NewString()
			}
			if records[i].GeneratedAt.IsZero() {
				records[i].GeneratedAt = now
			}
			if _, err := tx.NamedExecContext(ctx, upsertTermSummary, records[i]); err != nil {
				return fmt.Errorf("insert term summary for %s: %w", records[i].StudentID, err)
			}
		}
		return nil
	})
}

// ListByClassTerm returns a cohort ordered by class position.
func (r *TermSummaryRepository) ListByClassTerm(ctx context.Context, classID, termID string) ([]models.TermSummaryRecord, error) {
	const query = `SELECT ` + termSummaryColumns + ` FROM term_summaries
WHERE class_id = $1 AND term_id = $2 ORDER BY class_position ASC, admission_number ASC, student_id ASC`
	var records []models.TermSummaryRecord
	if err := r.db.SelectContext(ctx, &records, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list term summaries by class: %w", err)
	}
	return records, nil
}

// ListByStudent returns a student's summaries in chronological order. An empty
// year returns the full history.
func (r *TermSummaryRepository) ListByStudent(ctx context.Context, studentID, academicYear string) ([]models.TermSummaryRecord, error) {
	query := `SELECT ` + termSummaryColumns + ` FROM term_summaries WHERE student_id = $1`
	args := []interface{}{studentID}
	if academicYear != "" {
		query += ` AND academic_year = $2`
		args = append(args, academicYear)
	}
	query += ` ORDER BY academic_year ASC, term_number ASC`

	var records []models.TermSummaryRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list term summaries by student: %w", err)
	}
	return records, nil
}
