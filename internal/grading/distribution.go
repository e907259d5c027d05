package grading

import "github.com/montanaflynn/stats"

// GradeBucket is the tally for one grade.
type GradeBucket struct {
	Grade             string  `json:"grade"`
	Count             int     `json:"count"`
	PercentageOfTotal float64 `json:"percentage_of_total"`
}

// DistributionReport summarises how a set of percentages spreads over a scale.
type DistributionReport struct {
	Count       int                    `json:"count"`
	Buckets     []GradeBucket          `json:"buckets"`
	ByGrade     map[string]GradeBucket `json:"by_grade"`
	Mean        float64                `json:"mean"`
	Min         float64                `json:"min"`
	Max         float64                `json:"max"`
	PassingRate float64                `json:"passing_rate"`
	OutOfRange  int                    `json:"out_of_range"`
}

// Distribution grades every percentage through Lookup and tallies the results.
// Buckets list every grade of the applicable table in scale order, zero counts
// included. An empty input yields a zeroed report.
func (s GradeScale) Distribution(percentages []float64, subjectID string) DistributionReport {
	ranges, _ := s.rangesFor(subjectID)
	sorted := ranges.Sorted()

	counts := make(map[string]int, len(sorted))
	data := make(stats.Float64Data, 0, len(percentages))
	threshold := s.PassingThreshold()
	passed, outOfRange := 0, 0

	for _, p := range percentages {
		p = finiteOrZero(p)
		data = append(data, p)
		info := s.Lookup(p, subjectID)
		counts[info.Grade]++
		if info.OutOfRange {
			outOfRange++
		}
		if info.Percentage >= threshold {
			passed++
		}
	}

	report := DistributionReport{
		Count:      len(data),
		Buckets:    make([]GradeBucket, 0, len(sorted)),
		ByGrade:    make(map[string]GradeBucket, len(sorted)),
		OutOfRange: outOfRange,
	}
	for _, r := range sorted {
		bucket := GradeBucket{Grade: r.Grade, Count: counts[r.Grade]}
		if report.Count > 0 {
			bucket.PercentageOfTotal = float64(bucket.Count) / float64(report.Count) * 100
		}
		report.Buckets = append(report.Buckets, bucket)
		report.ByGrade[r.Grade] = bucket
	}

	if report.Count == 0 {
		return report
	}
	// stats only errors on empty input, which is handled above.
	report.Mean, _ = stats.Mean(data)
	report.Min, _ = stats.Min(data)
	report.Max, _ = stats.Max(data)
	report.PassingRate = float64(passed) / float64(report.Count) * 100
	return report
}
