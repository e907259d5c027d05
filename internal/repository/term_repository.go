package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// TermRepository reads the academic calendar.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// ListByYear returns the terms of an academic year in calendar order.
func (r *TermRepository) ListByYear(ctx context.Context, academicYear string) ([]models.Term, error) {
	const query = `SELECT id, name, term_number, academic_year, start_date, end_date FROM terms
WHERE academic_year = $1 ORDER BY term_number ASC, start_date ASC`
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, academicYear); err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

// GetByID fetches a term by id.
func (r *TermRepository) GetByID(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT id, name, term_number, academic_year, start_date, end_date FROM terms WHERE id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, fmt.Errorf("get term: %w", err)
	}
	return &term, nil
}
