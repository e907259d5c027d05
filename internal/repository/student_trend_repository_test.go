package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/models"
)

func TestStudentTrendRepositoryUpsertAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentTrendRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_trends")).
		WithArgs("s1", "2024", "medium", true, sqlmock.AnyArg(), "run-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.StudentTrendRecord{
		StudentID:          "s1",
		AcademicYear:       "2024",
		RiskLevel:          grading.RiskMedium,
		InterventionNeeded: true,
		Analysis:           models.TrendAnalysis{StudentID: "s1", TermsAnalyzed: 3},
		RunID:              "run-1",
	}
	require.NoError(t, repo.Upsert(context.Background(), record))
	assert.False(t, record.GeneratedAt.IsZero())

	mock.ExpectQuery(regexp.QuoteMeta("FROM student_trends WHERE student_id = $1 AND academic_year = $2")).
		WithArgs("s1", "2024").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "academic_year", "risk_level", "intervention_needed", "analysis", "run_id", "generated_at"}).
			AddRow("s1", "2024", "medium", true, `{"student_id":"s1","terms_analyzed":3}`, "run-1", time.Now()))

	stored, err := repo.GetByStudent(context.Background(), "s1", "2024")
	require.NoError(t, err)
	assert.Equal(t, grading.RiskMedium, stored.RiskLevel)
	assert.Equal(t, 3, stored.Analysis.TermsAnalyzed)
	require.NoError(t, mock.ExpectationsWereMet())
}
