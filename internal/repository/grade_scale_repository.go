package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/database"
)

const gradeScaleColumns = `id, name, version, academic_level, ranges, passing_grade, passing_percentage, rounding_unit, subject_overrides, is_default, created_by, created_at, updated_at`

// GradeScaleRepository persists grading tables.
type GradeScaleRepository struct {
	db *sqlx.DB
}

// NewGradeScaleRepository constructs the repository.
func NewGradeScaleRepository(db *sqlx.DB) *GradeScaleRepository {
	return &GradeScaleRepository{db: db}
}

// List returns scales matching filter, newest version first.
func (r *GradeScaleRepository) List(ctx context.Context, filter models.GradeScaleFilter) ([]models.GradeScaleRecord, error) {
	var conditions []string
	var args []interface{}
	if filter.AcademicLevel != "" {
		args = append(args, filter.AcademicLevel)
		conditions = append(conditions, fmt.Sprintf("academic_level = $%d", len(args)))
	}
	if filter.DefaultOnly {
		conditions = append(conditions, "is_default = TRUE")
	}

	query := `SELECT ` + gradeScaleColumns + ` FROM grade_scales`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY academic_level ASC, name ASC, version DESC"

	var records []models.GradeScaleRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list grade scales: %w", err)
	}
	return records, nil
}

// GetByID fetches a scale by id.
func (r *GradeScaleRepository) GetByID(ctx context.Context, id string) (*models.GradeScaleRecord, error) {
	const query = `SELECT ` + gradeScaleColumns + ` FROM grade_scales WHERE id = $1`
	var record models.GradeScaleRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, fmt.Errorf("get grade scale: %w", err)
	}
	return &record, nil
}

// FindDefault returns the default scale for an academic level.
func (r *GradeScaleRepository) FindDefault(ctx context.Context, academicLevel string) (*models.GradeScaleRecord, error) {
	const query = `SELECT ` + gradeScaleColumns + ` FROM grade_scales WHERE academic_level = $1 AND is_default = TRUE LIMIT 1`
	var record models.GradeScaleRecord
	if err := r.db.GetContext(ctx, &record, query, academicLevel); err != nil {
		return nil, fmt.Errorf("find default grade scale: %w", err)
	}
	return &record, nil
}

// Create inserts a new scale. Versions increase per (name, academic level), so
// editing a scale never rewrites history referenced by stored summaries.
func (r *GradeScaleRepository) Create(ctx context.Context, record *models.GradeScaleRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const next = `SELECT COALESCE(MAX(version), 0) + 1 FROM grade_scales WHERE name = $1 AND academic_level = $2`
		if err := tx.GetContext(ctx, &record.Version, next, record.Name, record.AcademicLevel); err != nil {
			return fmt.Errorf("next grade scale version: %w", err)
		}
		const insert = `INSERT INTO grade_scales (` + gradeScaleColumns + `)
VALUES (:id, :name, :version, :academic_level, :ranges, :passing_grade, :passing_percentage, :rounding_unit, :subject_overrides, :is_default, :created_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, record); err != nil {
			return fmt.Errorf("create grade scale: %w", err)
		}
		return nil
	})
}

// SetDefault marks id as the default for its academic level and clears the
// flag on every other scale of that level.
func (r *GradeScaleRepository) SetDefault(ctx context.Context, id string) (*models.GradeScaleRecord, error) {
	var record models.GradeScaleRecord
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const selectQuery = `SELECT ` + gradeScaleColumns + ` FROM grade_scales WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &record, selectQuery, id); err != nil {
			return fmt.Errorf("get grade scale: %w", err)
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE grade_scales SET is_default = FALSE, updated_at = $1 WHERE academic_level = $2 AND is_default = TRUE AND id <> $3`, now, record.AcademicLevel, id); err != nil {
			return fmt.Errorf("clear default grade scale: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE grade_scales SET is_default = TRUE, updated_at = $1 WHERE id = $2`, now, id); err != nil {
			return fmt.Errorf("set default grade scale: %w", err)
		}
		record.IsDefault = true
		record.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}
