package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// StudentTrendRepository stores the latest trend analysis per student and year.
type StudentTrendRepository struct {
	db *sqlx.DB
}

// NewStudentTrendRepository constructs the repository.
func NewStudentTrendRepository(db *sqlx.DB) *StudentTrendRepository {
	return &StudentTrendRepository{db: db}
}

// Upsert writes record, replacing any previous analysis.
func (r *StudentTrendRepository) Upsert(ctx context.Context, record *models.StudentTrendRecord) error {
	const query = `INSERT INTO student_trends (student_id, academic_year, risk_level, intervention_needed, analysis, run_id, generated_at)
VALUES (:student_id, :academic_year, :risk_level, :intervention_needed, :analysis, :run_id, :generated_at)
ON CONFLICT (student_id, academic_year)
DO UPDATE SET risk_level = EXCLUDED.risk_level, intervention_needed = EXCLUDED.intervention_needed,
              analysis = EXCLUDED.analysis, run_id = EXCLUDED.run_id, generated_at = EXCLUDED.generated_at`
	if record.GeneratedAt.IsZero() {
		record.GeneratedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert student trend: %w", err)
	}
	return nil
}

// GetByStudent returns the stored analysis for a student and year.
func (r *StudentTrendRepository) GetByStudent(ctx context.Context, studentID, academicYear string) (*models.StudentTrendRecord, error) {
	const query = `SELECT student_id, academic_year, risk_level, intervention_needed, analysis, run_id, generated_at
FROM student_trends WHERE student_id = $1 AND academic_year = $2`
	var record models.StudentTrendRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, academicYear); err != nil {
		return nil, fmt.Errorf("get student trend: %w", err)
	}
	return &record, nil
}
