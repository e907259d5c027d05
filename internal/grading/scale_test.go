package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKenyanScaleLookup(t *testing.T) {
	scale := KenyanScale()
	require.NoError(t, scale.Validate())

	cases := []struct {
		percentage float64
		grade      string
		points     int
	}{
		{85, "A", 12},
		{95, "A", 12},
		{100, "A", 12},
		{75, "A-", 11},
		{65, "B", 9},
		{55, "C+", 7},
		{45, "C-", 5},
		{35, "D", 3},
		{25, "E", 1},
		{0, "E", 1},
		{79.4, "A-", 11},
		{79.5, "A", 12},
		{29.5, "D-", 2},
	}
	for _, tc := range cases {
		info := scale.Lookup(tc.percentage, "")
		assert.Equal(t, tc.grade, info.Grade, "percentage %v", tc.percentage)
		assert.Equal(t, tc.points, info.Points, "percentage %v", tc.percentage)
		assert.False(t, info.OutOfRange)
	}
}

func TestLookupCoversEveryPercentage(t *testing.T) {
	scales := []GradeScale{KenyanScale()}
	for _, unit := range []RoundingUnit{RoundHalf, RoundTenth} {
		step := float64(unit)
		scales = append(scales, GradeScale{
			Name:         "fine",
			RoundingUnit: unit,
			PassingGrade: "B",
			Ranges: GradeRanges{
				{Grade: "A", MinPercent: 70, MaxPercent: 100, Points: 3},
				{Grade: "B", MinPercent: 40, MaxPercent: 70 - step, Points: 2},
				{Grade: "E", MinPercent: 0, MaxPercent: 40 - step, Points: 1},
			},
		})
	}

	for _, scale := range scales {
		require.NoError(t, scale.Validate())
		for i := 0; i <= 10000; i++ {
			p := float64(i) / 100
			info := scale.Lookup(p, "")
			require.False(t, info.OutOfRange, "unit %v percentage %v", scale.RoundingUnit, p)

			matches := 0
			for _, r := range scale.Ranges {
				if r.Contains(info.Percentage) {
					matches++
				}
			}
			require.Equal(t, 1, matches, "unit %v percentage %v", scale.RoundingUnit, p)
			require.Equal(t, info, scale.Lookup(p, ""))
		}
	}
}

func TestValidateRejectsGapWiderThanRoundingUnit(t *testing.T) {
	scale := KenyanScale()
	scale.RoundingUnit = RoundHalf

	err := scale.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 11)
	assert.Contains(t, err.Error(), "values between 79 and 80 are not covered")
}

func TestValidateRejectsGapHoldingRoundedValue(t *testing.T) {
	scale := GradeScale{
		Name:         "misaligned",
		RoundingUnit: RoundWhole,
		PassingGrade: "A",
		Ranges: GradeRanges{
			{Grade: "A", MinPercent: 50.2, MaxPercent: 100, Points: 2},
			{Grade: "E", MinPercent: 0, MaxPercent: 49.3, Points: 1},
		},
	}

	err := scale.Validate()
	require.Error(t, err, "50 rounds into the gap between E and A")
	assert.Contains(t, err.Error(), "values between 49.3 and 50.2 are not covered")

	narrow := scale
	narrow.Ranges = GradeRanges{
		{Grade: "A", MinPercent: 50.1, MaxPercent: 100, Points: 2},
		{Grade: "E", MinPercent: 0, MaxPercent: 49.9, Points: 1},
	}
	assert.Error(t, narrow.Validate(), "gap narrower than one unit still holds 50")

	aligned := scale
	aligned.Ranges = GradeRanges{
		{Grade: "A", MinPercent: 50, MaxPercent: 100, Points: 2},
		{Grade: "E", MinPercent: 0, MaxPercent: 49.6, Points: 1},
	}
	require.NoError(t, aligned.Validate())
	assert.Equal(t, "A", aligned.Lookup(49.7, "").Grade)
	assert.False(t, aligned.Lookup(49.7, "").OutOfRange)
}

func TestLookupOutOfRangeFallsBackToLowestGrade(t *testing.T) {
	scale := KenyanScale()

	info := scale.Lookup(120, "")
	assert.True(t, info.OutOfRange)
	assert.Equal(t, "E", info.Grade)

	info = scale.Lookup(-5, "")
	assert.True(t, info.OutOfRange)
	assert.Equal(t, "E", info.Grade)

	empty := GradeScale{Name: "empty"}
	info = empty.Lookup(50, "")
	assert.True(t, info.OutOfRange)
	assert.Empty(t, info.Grade)
}

func TestLookupUsesSubjectOverride(t *testing.T) {
	scale := KenyanScale()
	scale.SubjectOverrides = SubjectOverrides{
		"math": {
			{Grade: "A", MinPercent: 70, MaxPercent: 100, Points: 12},
			{Grade: "B", MinPercent: 50, MaxPercent: 69, Points: 9},
			{Grade: "E", MinPercent: 0, MaxPercent: 49, Points: 1},
		},
		"art": {},
	}
	require.NoError(t, scale.Validate())

	info := scale.Lookup(72, "math")
	assert.Equal(t, "A", info.Grade)
	assert.True(t, info.Override)

	assert.Equal(t, "B+", scale.Lookup(72, "").Grade)
	assert.Equal(t, "B+", scale.Lookup(72, "art").Grade)
	assert.False(t, scale.Lookup(72, "art").Override)
}

func TestRoundToUnit(t *testing.T) {
	assert.Equal(t, 80.0, RoundToUnit(79.5, RoundWhole))
	assert.Equal(t, 79.0, RoundToUnit(79.49, RoundWhole))
	assert.Equal(t, 79.5, RoundToUnit(79.26, RoundHalf))
	assert.Equal(t, 79.0, RoundToUnit(79.24, RoundHalf))
	assert.Equal(t, 79.9, RoundToUnit(79.86, RoundTenth))
	assert.Equal(t, 73.0, RoundToUnit(72.5, RoundingUnit(3)))
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	scale := GradeScale{
		Name:         "broken",
		RoundingUnit: RoundWhole,
		PassingGrade: "Z",
		Ranges: GradeRanges{
			{Grade: "A", MinPercent: 70, MaxPercent: 95, Points: 4},
			{Grade: "B", MinPercent: 60, MaxPercent: 72, Points: 3},
			{Grade: "C", MinPercent: 40, MaxPercent: 50, Points: 2},
			{Grade: "D", MinPercent: 30, MaxPercent: 20, Points: 1},
			{Grade: "D", MinPercent: 5, MaxPercent: 19, Points: 1},
		},
	}

	err := scale.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	messages := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		messages[i] = v.String()
	}
	assert.Contains(t, messages, "grade D: grade defined more than once")
	assert.Contains(t, messages, "grade D: min 30 exceeds max 20")
	assert.Contains(t, messages, "grade A: highest range must end at 100, got 95")
	assert.Contains(t, messages, "grade D: lowest range must start at 0, got 5")
	assert.Contains(t, messages, "grade B: overlaps A: [60,72] intersects [70,95]")
	assert.Contains(t, messages, "grade C: values between 50 and 60 are not covered")
	assert.Contains(t, messages, "grade Z: passing grade is not defined in the scale")
}

func TestValidateRejectsBoundsAndUnits(t *testing.T) {
	scale := KenyanScale()
	scale.RoundingUnit = RoundingUnit(0.25)
	scale.Ranges[0].MaxPercent = 110

	err := scale.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.GreaterOrEqual(t, len(verr.Violations), 3)
	assert.Contains(t, err.Error(), "rounding unit 0.25 not supported")
	assert.Contains(t, err.Error(), "fall outside [0,100]")
}

func TestValidateOverridesArePrefixedWithSubject(t *testing.T) {
	scale := KenyanScale()
	scale.SubjectOverrides = SubjectOverrides{
		"chem": {
			{Grade: "A", MinPercent: 60, MaxPercent: 100, Points: 12},
			{Grade: "E", MinPercent: 0, MaxPercent: 40, Points: 1},
		},
	}
	err := scale.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, "chem", verr.Violations[0].SubjectID)
	assert.Contains(t, verr.Violations[0].String(), "subject chem: grade E")
}

func TestValidateEmptyRanges(t *testing.T) {
	violations := ValidateRanges(nil, RoundWhole)
	require.Len(t, violations, 1)
	assert.Equal(t, "at least one grade range is required", violations[0].Message)
}

func TestValidatedScaleHasNoOverlaps(t *testing.T) {
	scale := KenyanScale().Normalized()
	for i, a := range scale.Ranges {
		for j, b := range scale.Ranges {
			if i == j {
				continue
			}
			intersects := a.MinPercent <= b.MaxPercent && b.MinPercent <= a.MaxPercent
			assert.False(t, intersects, "%s intersects %s", a.Grade, b.Grade)
		}
	}
}

func TestIsPassing(t *testing.T) {
	scale := KenyanScale()
	assert.True(t, scale.IsPassing("A"))
	assert.True(t, scale.IsPassing("D+"))
	assert.False(t, scale.IsPassing("D"))
	assert.False(t, scale.IsPassing("E"))
	assert.False(t, scale.IsPassing("Z"))
	assert.Equal(t, 40.0, scale.PassingThreshold())

	scale.PassingPercentage = 50
	assert.Equal(t, 50.0, scale.PassingThreshold())
}

func TestDistribution(t *testing.T) {
	scale := KenyanScale()
	report := scale.Distribution([]float64{85, 90, 72, 41, 20}, "")

	assert.Equal(t, 5, report.Count)
	require.Len(t, report.Buckets, 12)
	assert.Equal(t, "A", report.Buckets[0].Grade)
	assert.Equal(t, 2, report.ByGrade["A"].Count)
	assert.InDelta(t, 40.0, report.ByGrade["A"].PercentageOfTotal, 1e-9)
	assert.Equal(t, 0, report.ByGrade["B"].Count)
	assert.Equal(t, 1, report.ByGrade["E"].Count)
	assert.InDelta(t, 61.6, report.Mean, 1e-9)
	assert.Equal(t, 20.0, report.Min)
	assert.Equal(t, 90.0, report.Max)
	assert.InDelta(t, 80.0, report.PassingRate, 1e-9)
}

func TestDistributionEmpty(t *testing.T) {
	report := KenyanScale().Distribution(nil, "")
	assert.Equal(t, 0, report.Count)
	assert.Len(t, report.Buckets, 12)
	assert.Zero(t, report.Mean)
	assert.Zero(t, report.PassingRate)
}

func TestGradeRangesJSONRoundTrip(t *testing.T) {
	ranges := KenyanScale().Ranges
	value, err := ranges.Value()
	require.NoError(t, err)

	var decoded GradeRanges
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, ranges, decoded)

	var overrides SubjectOverrides
	require.NoError(t, overrides.Scan(nil))
	assert.Nil(t, overrides)
	assert.Error(t, overrides.Scan(42))
}
