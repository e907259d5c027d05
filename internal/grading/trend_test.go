package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(values ...float64) []TrendPoint {
	points := make([]TrendPoint, len(values))
	for i, v := range values {
		points[i] = TrendPoint{TermIndex: i, Percentage: v}
	}
	return points
}

func TestClassifySubjectTrend(t *testing.T) {
	cases := []struct {
		name  string
		input []TrendPoint
		label TrendLabel
	}{
		{"empty", nil, TrendInsufficientData},
		{"single", series(55), TrendInsufficientData},
		{"improving", series(40, 55, 70), TrendImproving},
		{"inconsistent", series(70, 40, 68), TrendInconsistent},
		{"declining", series(70, 65, 58), TrendDeclining},
		{"stable", series(60, 61, 60, 62), TrendStable},
		{"slope at threshold", series(50, 52), TrendStable},
		{"two term rise within spread", series(50, 70), TrendImproving},
		{"two term jump beyond spread", series(50, 72), TrendInconsistent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.label, ClassifySubjectTrend("math", tc.input).Label)
		})
	}
}

func TestClassifySubjectTrendOrdersByTermIndex(t *testing.T) {
	c := ClassifySubjectTrend("eng", []TrendPoint{
		{TermIndex: 2, Percentage: 70},
		{TermIndex: 0, Percentage: 40},
		{TermIndex: 1, Percentage: 55},
	})
	assert.Equal(t, TrendImproving, c.Label)
	assert.InDelta(t, 15.0, c.Slope, 1e-9)
	assert.InDelta(t, 15.0, c.StdDev, 1e-9)
	assert.Equal(t, 70.0, c.Latest)
	assert.Equal(t, 3, c.Points)
}

func TestSlopeAndStdDev(t *testing.T) {
	assert.Zero(t, Slope([]float64{42}))
	assert.InDelta(t, -1.0, Slope([]float64{70, 40, 68}), 1e-9)
	assert.InDelta(t, 16.773, StdDev([]float64{70, 40, 68}), 1e-3)
	assert.Zero(t, StdDev([]float64{10}))
	assert.InDelta(t, 15.556, StdDev([]float64{50, 72}), 1e-3, "sample, not population")
}

func TestClassifyRisk(t *testing.T) {
	cases := []struct {
		name         string
		latest       float64
		rate         float64
		level        RiskLevel
		intervention bool
	}{
		{"high always intervenes", 39.9, 10, RiskHigh, true},
		{"medium improving", 40, 3, RiskMedium, false},
		{"medium slow decline", 55, -5, RiskMedium, false},
		{"medium steep decline", 59.9, -5.1, RiskMedium, true},
		{"low", 60, -20, RiskLow, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			risk := ClassifyRisk(tc.latest, tc.rate)
			assert.Equal(t, tc.level, risk.Level)
			assert.Equal(t, tc.intervention, risk.InterventionNeeded)
		})
	}
}

func TestAverageImprovementRate(t *testing.T) {
	assert.Zero(t, AverageImprovementRate(nil))
	assert.Zero(t, AverageImprovementRate([]float64{50}))
	assert.InDelta(t, -6.0, AverageImprovementRate([]float64{62, 55, 50}), 1e-9)
}

func TestAnalyzeStudent(t *testing.T) {
	history := []TermSummary{
		{StudentID: "s1", AcademicYear: "2024", TermNumber: 3, AveragePercentage: 50, SubjectResults: SubjectResults{
			{SubjectID: "math", SubjectName: "Mathematics", Percentage: 45},
		}},
		{StudentID: "s1", AcademicYear: "2024", TermNumber: 1, AveragePercentage: 62, SubjectResults: SubjectResults{
			{SubjectID: "math", Percentage: 60},
			{SubjectID: "eng", Percentage: 70},
		}},
		{StudentID: "s1", AcademicYear: "2024", TermNumber: 2, AveragePercentage: 55, SubjectResults: SubjectResults{
			{SubjectID: "math", Percentage: 52},
			{SubjectID: "eng", Percentage: 71},
		}},
	}

	trend := AnalyzeStudent(history)
	assert.Equal(t, "s1", trend.StudentID)
	assert.Equal(t, 3, trend.TermsAnalyzed)
	require.Len(t, trend.Subjects, 2)

	assert.Equal(t, "eng", trend.Subjects[0].SubjectID)
	assert.Equal(t, TrendStable, trend.Subjects[0].Label)
	assert.Equal(t, 2, trend.Subjects[0].Points)

	assert.Equal(t, "math", trend.Subjects[1].SubjectID)
	assert.Equal(t, "Mathematics", trend.Subjects[1].SubjectName)
	assert.Equal(t, TrendDeclining, trend.Subjects[1].Label)

	assert.Equal(t, TrendDeclining, trend.Overall.Label)
	assert.Equal(t, RiskMedium, trend.Risk.Level)
	assert.Equal(t, 50.0, trend.Risk.LatestAverage)
	assert.InDelta(t, -6.0, trend.Risk.AverageImprovementRate, 1e-9)
	assert.True(t, trend.Risk.InterventionNeeded)
}

func TestAnalyzeStudentWithoutHistory(t *testing.T) {
	trend := AnalyzeStudent(nil)
	assert.Equal(t, 0, trend.TermsAnalyzed)
	assert.Empty(t, trend.Subjects)
	assert.Equal(t, TrendInsufficientData, trend.Overall.Label)
	assert.Equal(t, RiskHigh, trend.Risk.Level)
}
