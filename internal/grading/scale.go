package grading

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// GradeRange maps an inclusive percentage interval to a letter grade.
type GradeRange struct {
	Grade      string  `json:"grade" yaml:"grade"`
	MinPercent float64 `json:"min_percent" yaml:"min_percent"`
	MaxPercent float64 `json:"max_percent" yaml:"max_percent"`
	Points     int     `json:"points" yaml:"points"`
	Label      string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// Contains reports whether p falls inside the range bounds.
func (r GradeRange) Contains(p float64) bool {
	return p >= r.MinPercent-boundsTolerance && p <= r.MaxPercent+boundsTolerance
}

// GradeRanges is an ordered list of ranges, highest grade first.
type GradeRanges []GradeRange

// Sorted returns a copy ordered descending by MaxPercent.
func (rs GradeRanges) Sorted() GradeRanges {
	out := make(GradeRanges, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MaxPercent != out[j].MaxPercent {
			return out[i].MaxPercent > out[j].MaxPercent
		}
		return out[i].MinPercent > out[j].MinPercent
	})
	return out
}

func (rs GradeRanges) indexOf(grade string) int {
	for i, r := range rs {
		if r.Grade == grade {
			return i
		}
	}
	return -1
}

// Value marshals ranges to JSON for persistence.
func (rs GradeRanges) Value() (driver.Value, error) {
	if rs == nil {
		rs = GradeRanges{}
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("marshal grade ranges: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the ranges.
func (rs *GradeRanges) Scan(value interface{}) error {
	return scanJSON(value, rs, "grade ranges")
}

// SubjectOverrides maps a subject id to the ranges that replace the default ones.
type SubjectOverrides map[string]GradeRanges

// Value marshals overrides to JSON for persistence.
func (o SubjectOverrides) Value() (driver.Value, error) {
	if o == nil {
		o = SubjectOverrides{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal subject overrides: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the overrides.
func (o *SubjectOverrides) Scan(value interface{}) error {
	return scanJSON(value, o, "subject overrides")
}

// GradeScale is a named, versioned grading table. Values are treated as
// immutable once validated; callers resolve which scale applies and pass it in.
type GradeScale struct {
	ID                string           `json:"id,omitempty" yaml:"id,omitempty"`
	Name              string           `json:"name" yaml:"name"`
	Version           int              `json:"version" yaml:"version"`
	AcademicLevel     string           `json:"academic_level" yaml:"academic_level"`
	Ranges            GradeRanges      `json:"ranges" yaml:"ranges"`
	PassingGrade      string           `json:"passing_grade" yaml:"passing_grade"`
	PassingPercentage float64          `json:"passing_percentage" yaml:"passing_percentage"`
	RoundingUnit      RoundingUnit     `json:"rounding_unit" yaml:"rounding_unit"`
	SubjectOverrides  SubjectOverrides `json:"subject_overrides,omitempty" yaml:"subject_overrides,omitempty"`
}

// GradeInfo is the outcome of a lookup.
type GradeInfo struct {
	Grade      string  `json:"grade"`
	Label      string  `json:"label,omitempty"`
	Points     int     `json:"points"`
	MinPercent float64 `json:"min_percent"`
	MaxPercent float64 `json:"max_percent"`
	Percentage float64 `json:"percentage"`
	OutOfRange bool    `json:"out_of_range"`
	Override   bool    `json:"override"`
}

// Normalized returns a copy of the scale with every range list sorted highest first.
func (s GradeScale) Normalized() GradeScale {
	out := s
	out.Ranges = s.Ranges.Sorted()
	if len(s.SubjectOverrides) > 0 {
		out.SubjectOverrides = make(SubjectOverrides, len(s.SubjectOverrides))
		for subject, ranges := range s.SubjectOverrides {
			out.SubjectOverrides[subject] = ranges.Sorted()
		}
	}
	return out
}

func (s GradeScale) rangesFor(subjectID string) (GradeRanges, bool) {
	if subjectID != "" {
		if override, ok := s.SubjectOverrides[subjectID]; ok && len(override) > 0 {
			return override, true
		}
	}
	return s.Ranges, false
}

// Lookup rounds percentage to the scale's rounding unit and returns the grade of
// the first range containing it, preferring the subject override when present.
// A value no range contains yields the lowest grade flagged OutOfRange.
func (s GradeScale) Lookup(percentage float64, subjectID string) GradeInfo {
	rounded := RoundToUnit(finiteOrZero(percentage), s.RoundingUnit)
	ranges, override := s.rangesFor(subjectID)
	for _, r := range ranges {
		if r.Contains(rounded) {
			return newGradeInfo(r, rounded, override, false)
		}
	}
	if len(ranges) == 0 {
		return GradeInfo{Percentage: rounded, Override: override, OutOfRange: true}
	}
	lowest := ranges[0]
	for _, r := range ranges[1:] {
		if r.MaxPercent < lowest.MaxPercent {
			lowest = r
		}
	}
	return newGradeInfo(lowest, rounded, override, true)
}

func newGradeInfo(r GradeRange, rounded float64, override, outOfRange bool) GradeInfo {
	return GradeInfo{
		Grade:      r.Grade,
		Label:      r.Label,
		Points:     r.Points,
		MinPercent: r.MinPercent,
		MaxPercent: r.MaxPercent,
		Percentage: rounded,
		OutOfRange: outOfRange,
		Override:   override,
	}
}

// IsPassing compares grade against the passing grade by scale position: lower
// index means higher grade, so grade passes iff its index <= the passing index.
func (s GradeScale) IsPassing(grade string) bool {
	return s.IsPassingFor(grade, "")
}

// IsPassingFor is IsPassing evaluated against the subject's override table when
// that table knows both grades.
func (s GradeScale) IsPassingFor(grade, subjectID string) bool {
	if ranges, override := s.rangesFor(subjectID); override {
		sorted := ranges.Sorted()
		gi, pi := sorted.indexOf(grade), sorted.indexOf(s.PassingGrade)
		if gi >= 0 && pi >= 0 {
			return gi <= pi
		}
	}
	sorted := s.Ranges.Sorted()
	gi, pi := sorted.indexOf(grade), sorted.indexOf(s.PassingGrade)
	if gi < 0 || pi < 0 {
		return false
	}
	return gi <= pi
}

// PassingThreshold is the percentage at or above which a score counts as a pass.
func (s GradeScale) PassingThreshold() float64 {
	if s.PassingPercentage > 0 {
		return s.PassingPercentage
	}
	if i := s.Ranges.indexOf(s.PassingGrade); i >= 0 {
		return s.Ranges[i].MinPercent
	}
	return 0
}

// Grades lists the scale's grade letters highest first.
func (s GradeScale) Grades() []string {
	sorted := s.Ranges.Sorted()
	grades := make([]string, len(sorted))
	for i, r := range sorted {
		grades[i] = r.Grade
	}
	return grades
}

// Violation describes a single problem found while validating a scale.
type Violation struct {
	SubjectID string `json:"subject_id,omitempty"`
	Grade     string `json:"grade,omitempty"`
	Message   string `json:"message"`
}

func (v Violation) String() string {
	var b strings.Builder
	if v.SubjectID != "" {
		b.WriteString("subject ")
		b.WriteString(v.SubjectID)
		b.WriteString(": ")
	}
	if v.Grade != "" {
		b.WriteString("grade ")
		b.WriteString(v.Grade)
		b.WriteString(": ")
	}
	b.WriteString(v.Message)
	return b.String()
}

// ValidationError carries every violation found in a scale.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid grade scale (%d violations): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Validate checks the whole scale and returns a *ValidationError listing every
// violation, or nil when the scale is usable.
func (s GradeScale) Validate() error {
	var violations []Violation
	if strings.TrimSpace(s.Name) == "" {
		violations = append(violations, Violation{Message: "scale name is required"})
	}
	if !s.RoundingUnit.Valid() {
		violations = append(violations, Violation{Message: fmt.Sprintf("rounding unit %v not supported (use 1, 0.5 or 0.1)", float64(s.RoundingUnit))})
	}
	violations = append(violations, ValidateRanges(s.Ranges, s.RoundingUnit)...)
	if s.PassingGrade == "" {
		violations = append(violations, Violation{Message: "passing grade is required"})
	} else if s.Ranges.indexOf(s.PassingGrade) < 0 {
		violations = append(violations, Violation{Grade: s.PassingGrade, Message: "passing grade is not defined in the scale"})
	}
	if s.PassingPercentage < 0 || s.PassingPercentage > 100 {
		violations = append(violations, Violation{Message: "passing percentage must be within [0,100]"})
	}

	subjects := make([]string, 0, len(s.SubjectOverrides))
	for subject := range s.SubjectOverrides {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	for _, subject := range subjects {
		ranges := s.SubjectOverrides[subject]
		if len(ranges) == 0 {
			continue
		}
		for _, v := range ValidateRanges(ranges, s.RoundingUnit) {
			v.SubjectID = subject
			violations = append(violations, v)
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ValidateRanges collects every coverage, ordering and overlap problem of ranges.
// Adjacent ranges must not share any value, and the space between them must not
// contain a multiple of the rounding unit, since rounded percentages land there.
func ValidateRanges(ranges []GradeRange, unit RoundingUnit) []Violation {
	if len(ranges) == 0 {
		return []Violation{{Message: "at least one grade range is required"}}
	}

	var violations []Violation
	seen := make(map[string]struct{}, len(ranges))
	for _, r := range ranges {
		if strings.TrimSpace(r.Grade) == "" {
			violations = append(violations, Violation{Message: "grade letter is required"})
		} else if _, dup := seen[r.Grade]; dup {
			violations = append(violations, Violation{Grade: r.Grade, Message: "grade defined more than once"})
		}
		seen[r.Grade] = struct{}{}
		if r.MinPercent < 0 || r.MinPercent > 100 || r.MaxPercent < 0 || r.MaxPercent > 100 {
			violations = append(violations, Violation{Grade: r.Grade, Message: fmt.Sprintf("bounds [%g,%g] fall outside [0,100]", r.MinPercent, r.MaxPercent)})
		}
		if r.MinPercent > r.MaxPercent {
			violations = append(violations, Violation{Grade: r.Grade, Message: fmt.Sprintf("min %g exceeds max %g", r.MinPercent, r.MaxPercent)})
		}
	}

	sorted := GradeRanges(ranges).Sorted()
	if top := sorted[0]; top.MaxPercent != 100 {
		violations = append(violations, Violation{Grade: top.Grade, Message: fmt.Sprintf("highest range must end at 100, got %g", top.MaxPercent)})
	}
	if bottom := sorted[len(sorted)-1]; bottom.MinPercent != 0 {
		violations = append(violations, Violation{Grade: bottom.Grade, Message: fmt.Sprintf("lowest range must start at 0, got %g", bottom.MinPercent)})
	}

	step := float64(unit.orDefault())
	for i := 1; i < len(sorted); i++ {
		higher, lower := sorted[i-1], sorted[i]
		if lower.MaxPercent >= higher.MinPercent {
			violations = append(violations, Violation{
				Grade:   lower.Grade,
				Message: fmt.Sprintf("overlaps %s: [%g,%g] intersects [%g,%g]", higher.Grade, lower.MinPercent, lower.MaxPercent, higher.MinPercent, higher.MaxPercent),
			})
			continue
		}
		if next := nextMultiple(lower.MaxPercent, step); next < higher.MinPercent-boundsTolerance {
			violations = append(violations, Violation{
				Grade:   lower.Grade,
				Message: fmt.Sprintf("values between %g and %g are not covered", lower.MaxPercent, higher.MinPercent),
			})
		}
	}
	return violations
}

// nextMultiple returns the smallest multiple of step strictly above v.
func nextMultiple(v, step float64) float64 {
	n := math.Floor(v/step+boundsTolerance) + 1
	return math.Round(n*step*1e6) / 1e6
}

// KenyanScale returns the 8-4-4 secondary twelve point scale.
func KenyanScale() GradeScale {
	return GradeScale{
		Name:          "KCSE 8-4-4",
		Version:       1,
		AcademicLevel: "SECONDARY",
		RoundingUnit:  RoundWhole,
		PassingGrade:  "D+",
		Ranges: GradeRanges{
			{Grade: "A", MinPercent: 80, MaxPercent: 100, Points: 12, Label: "Excellent"},
			{Grade: "A-", MinPercent: 75, MaxPercent: 79, Points: 11, Label: "Very Good"},
			{Grade: "B+", MinPercent: 70, MaxPercent: 74, Points: 10, Label: "Good"},
			{Grade: "B", MinPercent: 65, MaxPercent: 69, Points: 9, Label: "Good"},
			{Grade: "B-", MinPercent: 60, MaxPercent: 64, Points: 8, Label: "Above Average"},
			{Grade: "C+", MinPercent: 55, MaxPercent: 59, Points: 7, Label: "Average"},
			{Grade: "C", MinPercent: 50, MaxPercent: 54, Points: 6, Label: "Average"},
			{Grade: "C-", MinPercent: 45, MaxPercent: 49, Points: 5, Label: "Below Average"},
			{Grade: "D+", MinPercent: 40, MaxPercent: 44, Points: 4, Label: "Below Average"},
			{Grade: "D", MinPercent: 35, MaxPercent: 39, Points: 3, Label: "Weak"},
			{Grade: "D-", MinPercent: 30, MaxPercent: 34, Points: 2, Label: "Weak"},
			{Grade: "E", MinPercent: 0, MaxPercent: 29, Points: 1, Label: "Poor"},
		},
	}
}

func scanJSON(value interface{}, dest interface{}, what string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, what)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
