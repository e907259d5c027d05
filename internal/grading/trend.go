package grading

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// TrendLabel classifies the direction of a percentage series.
type TrendLabel string

const (
	TrendImproving        TrendLabel = "improving"
	TrendDeclining        TrendLabel = "declining"
	TrendStable           TrendLabel = "stable"
	TrendInconsistent     TrendLabel = "inconsistent"
	TrendInsufficientData TrendLabel = "insufficient_data"
)

const (
	// InconsistencyStdDev is the spread above which a series is inconsistent
	// regardless of its slope.
	InconsistencyStdDev = 15.0
	// SlopeThreshold is the per-term change needed to call a series improving or declining.
	SlopeThreshold = 2.0
)

// TrendPoint is one term's percentage in a subject.
type TrendPoint struct {
	TermIndex  int     `json:"term_index"`
	Percentage float64 `json:"percentage"`
}

// TrendClassification labels one subject's series.
type TrendClassification struct {
	SubjectID   string     `json:"subject_id"`
	SubjectName string     `json:"subject_name,omitempty"`
	Label       TrendLabel `json:"label"`
	Slope       float64    `json:"slope"`
	StdDev      float64    `json:"std_dev"`
	Points      int        `json:"points"`
	Latest      float64    `json:"latest"`
}

// ClassifySubjectTrend fits a least-squares line through the percentages (x = 0..n-1
// after ordering by term index) and labels the series. Spread is checked before
// direction.
func ClassifySubjectTrend(subjectID string, points []TrendPoint) TrendClassification {
	out := TrendClassification{SubjectID: subjectID, Points: len(points), Label: TrendInsufficientData}
	if len(points) == 0 {
		return out
	}

	ordered := make([]TrendPoint, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TermIndex < ordered[j].TermIndex })

	ys := make([]float64, len(ordered))
	for i, p := range ordered {
		ys[i] = finiteOrZero(p.Percentage)
	}
	out.Latest = ys[len(ys)-1]
	if len(ys) < 2 {
		return out
	}

	out.Slope = Slope(ys)
	out.StdDev = StdDev(ys)
	switch {
	case out.StdDev > InconsistencyStdDev:
		out.Label = TrendInconsistent
	case out.Slope > SlopeThreshold:
		out.Label = TrendImproving
	case out.Slope < -SlopeThreshold:
		out.Label = TrendDeclining
	default:
		out.Label = TrendStable
	}
	return out
}

// Slope is the ordinary least-squares slope of ys over x = 0..n-1.
func Slope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// StdDev is the sample standard deviation of ys, zero for fewer than two values.
func StdDev(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(ys))
	if err != nil {
		return 0
	}
	return sd
}

// RiskLevel grades how urgently a student needs attention.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	HighRiskBelow             = 40.0
	MediumRiskBelow           = 60.0
	DecliningInterventionRate = -5.0
)

// RiskAssessment is the risk classification of one student.
type RiskAssessment struct {
	Level                  RiskLevel `json:"level"`
	InterventionNeeded     bool      `json:"intervention_needed"`
	LatestAverage          float64   `json:"latest_average"`
	AverageImprovementRate float64   `json:"average_improvement_rate"`
}

// ClassifyRisk maps the latest term average and the improvement rate to a risk
// level. High risk always needs intervention; medium only while declining faster
// than five points a term.
func ClassifyRisk(latestAverage, improvementRate float64) RiskAssessment {
	latestAverage = finiteOrZero(latestAverage)
	improvementRate = finiteOrZero(improvementRate)
	out := RiskAssessment{LatestAverage: latestAverage, AverageImprovementRate: improvementRate}
	switch {
	case latestAverage < HighRiskBelow:
		out.Level = RiskHigh
		out.InterventionNeeded = true
	case latestAverage < MediumRiskBelow:
		out.Level = RiskMedium
		out.InterventionNeeded = improvementRate < DecliningInterventionRate
	default:
		out.Level = RiskLow
	}
	return out
}

// AverageImprovementRate is the mean of consecutive deltas, zero below two values.
func AverageImprovementRate(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(series); i++ {
		total += finiteOrZero(series[i]) - finiteOrZero(series[i-1])
	}
	return total / float64(len(series)-1)
}

// StudentTrend is the longitudinal analysis of one student.
type StudentTrend struct {
	StudentID     string                `json:"student_id"`
	TermsAnalyzed int                   `json:"terms_analyzed"`
	Overall       TrendClassification   `json:"overall"`
	Subjects      []TrendClassification `json:"subjects"`
	Risk          RiskAssessment        `json:"risk"`
}

// AnalyzeStudent orders history chronologically by academic year and term
// number, classifies every subject series and the overall average series, and
// derives the student's risk. Terms that lack a subject are skipped for it.
func AnalyzeStudent(history []TermSummary) StudentTrend {
	ordered := make([]TermSummary, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AcademicYear != ordered[j].AcademicYear {
			return ordered[i].AcademicYear < ordered[j].AcademicYear
		}
		return ordered[i].TermNumber < ordered[j].TermNumber
	})

	trend := StudentTrend{TermsAnalyzed: len(ordered), Subjects: []TrendClassification{}}
	if len(ordered) > 0 {
		trend.StudentID = ordered[0].StudentID
	}

	overall := make([]float64, len(ordered))
	overallPoints := make([]TrendPoint, len(ordered))
	series := make(map[string][]TrendPoint)
	names := make(map[string]string)
	for i, summary := range ordered {
		overall[i] = finiteOrZero(summary.AveragePercentage)
		overallPoints[i] = TrendPoint{TermIndex: i, Percentage: overall[i]}
		for _, r := range summary.SubjectResults {
			series[r.SubjectID] = append(series[r.SubjectID], TrendPoint{TermIndex: i, Percentage: r.Percentage})
			if r.SubjectName != "" {
				names[r.SubjectID] = r.SubjectName
			}
		}
	}

	subjects := make([]string, 0, len(series))
	for id := range series {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)
	for _, id := range subjects {
		c := ClassifySubjectTrend(id, series[id])
		c.SubjectName = names[id]
		trend.Subjects = append(trend.Subjects, c)
	}

	trend.Overall = ClassifySubjectTrend("", overallPoints)
	latest := 0.0
	if len(overall) > 0 {
		latest = overall[len(overall)-1]
	}
	trend.Risk = ClassifyRisk(latest, AverageImprovementRate(overall))
	return trend
}
