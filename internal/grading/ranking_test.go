package grading

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankCompetitionPositions(t *testing.T) {
	positions := Rank([]TermSummary{
		{StudentID: "s3", AdmissionNumber: "003", MeanGradePoint: 9, TotalMarks: 70},
		{StudentID: "s2", AdmissionNumber: "002", MeanGradePoint: 12, TotalMarks: 80},
		{StudentID: "s1", AdmissionNumber: "001", MeanGradePoint: 12, TotalMarks: 85},
	})
	assert.Equal(t, []Position{
		{StudentID: "s1", Position: 1},
		{StudentID: "s2", Position: 2},
		{StudentID: "s3", Position: 3},
	}, positions)
}

func TestRankWithPointsBasisTiesOnMeanGradePoint(t *testing.T) {
	positions := RankWith([]TermSummary{
		{StudentID: "s3", AdmissionNumber: "003", MeanGradePoint: 9, TotalMarks: 70},
		{StudentID: "s2", AdmissionNumber: "002", MeanGradePoint: 12, TotalMarks: 80},
		{StudentID: "s1", AdmissionNumber: "001", MeanGradePoint: 12, TotalMarks: 85},
	}, TieOnPoints)
	assert.Equal(t, []Position{
		{StudentID: "s1", Position: 1},
		{StudentID: "s2", Position: 1},
		{StudentID: "s3", Position: 3},
	}, positions)
	assert.True(t, TieOnPoints.Valid())
	assert.False(t, TieBasis("marks").Valid())
}

func TestRankTiesShareAndConsumeSlots(t *testing.T) {
	positions := Rank([]TermSummary{
		{StudentID: "c", AdmissionNumber: "300", MeanGradePoint: 9, TotalMarks: 70},
		{StudentID: "b", AdmissionNumber: "200", MeanGradePoint: 12, TotalMarks: 85},
		{StudentID: "a", AdmissionNumber: "100", MeanGradePoint: 12, TotalMarks: 85},
	})
	assert.Equal(t, []Position{
		{StudentID: "a", Position: 1},
		{StudentID: "b", Position: 1},
		{StudentID: "c", Position: 3},
	}, positions)
}

func TestRankUsesEpsilonForTies(t *testing.T) {
	positions := Rank([]TermSummary{
		{StudentID: "x", AdmissionNumber: "B", MeanGradePoint: 10.004, TotalMarks: 500},
		{StudentID: "y", AdmissionNumber: "A", MeanGradePoint: 10.000, TotalMarks: 500.009},
		{StudentID: "z", AdmissionNumber: "C", MeanGradePoint: 10.02, TotalMarks: 400},
	})
	assert.Equal(t, []Position{
		{StudentID: "z", Position: 1},
		{StudentID: "y", Position: 2},
		{StudentID: "x", Position: 2},
	}, positions)
}

func TestRankFallsBackToStudentIDForTiebreak(t *testing.T) {
	positions := Rank([]TermSummary{
		{StudentID: "b", MeanGradePoint: 5, TotalMarks: 50},
		{StudentID: "a", MeanGradePoint: 5, TotalMarks: 50},
	})
	assert.Equal(t, "a", positions[0].StudentID)
	assert.Equal(t, 1, positions[1].Position)
}

func TestRankEdgeCases(t *testing.T) {
	assert.Equal(t, []Position{}, Rank(nil))
	assert.Equal(t, []Position{{StudentID: "solo", Position: 1}}, Rank([]TermSummary{{StudentID: "solo"}}))

	positions := Rank([]TermSummary{
		{StudentID: "nan", MeanGradePoint: math.NaN(), TotalMarks: math.Inf(1)},
		{StudentID: "ok", MeanGradePoint: 1, TotalMarks: 10},
	})
	require.Len(t, positions, 2)
	assert.Equal(t, Position{StudentID: "nan", Position: 2}, positions[1])
}

func TestRankIsIndependentOfInputOrder(t *testing.T) {
	base := []TermSummary{
		{StudentID: "s1", AdmissionNumber: "A1", MeanGradePoint: 8.333, TotalMarks: 612},
		{StudentID: "s2", AdmissionNumber: "A2", MeanGradePoint: 8.333, TotalMarks: 612.004},
		{StudentID: "s3", AdmissionNumber: "A3", MeanGradePoint: 8.338, TotalMarks: 600},
		{StudentID: "s4", AdmissionNumber: "A4", MeanGradePoint: 11, TotalMarks: 700},
		{StudentID: "s5", AdmissionNumber: "A5", MeanGradePoint: 0, TotalMarks: 0},
		{StudentID: "s6", AdmissionNumber: "A6", MeanGradePoint: 8.345, TotalMarks: 612},
	}
	want := Rank(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := make([]TermSummary, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.Equal(t, want, Rank(shuffled))
	}
}

func TestApplyPositionsPartitionsByScope(t *testing.T) {
	summaries := []TermSummary{
		{StudentID: "a", ClassID: "f4", Stream: "east", TermID: "t1", MeanGradePoint: 10, TotalMarks: 700},
		{StudentID: "b", ClassID: "f4", Stream: "west", TermID: "t1", MeanGradePoint: 11, TotalMarks: 750},
		{StudentID: "c", ClassID: "f4", Stream: "east", TermID: "t1", MeanGradePoint: 9, TotalMarks: 650},
		{StudentID: "d", ClassID: "f4", Stream: "east", TermID: "t2", MeanGradePoint: 1, TotalMarks: 10},
	}

	ranked := ApplyPositions(ApplyPositions(summaries, ScopeClass, TieOnPointsAndMarks), ScopeStream, TieOnPointsAndMarks)
	require.Len(t, ranked, 4)

	assert.Equal(t, "a", ranked[0].StudentID)
	assert.Equal(t, 2, ranked[0].ClassPosition)
	assert.Equal(t, 3, ranked[0].ClassSize)
	assert.Equal(t, 1, ranked[0].StreamPosition)
	assert.Equal(t, 2, ranked[0].StreamSize)

	assert.Equal(t, 1, ranked[1].ClassPosition)
	assert.Equal(t, 1, ranked[1].StreamPosition)
	assert.Equal(t, 1, ranked[1].StreamSize)

	assert.Equal(t, 3, ranked[2].ClassPosition)
	assert.Equal(t, 2, ranked[2].StreamPosition)

	assert.Equal(t, 1, ranked[3].ClassPosition)
	assert.Equal(t, 1, ranked[3].ClassSize)

	assert.Zero(t, summaries[0].ClassPosition, "input must not be mutated")
}
