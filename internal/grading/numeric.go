// Package grading turns raw assessment marks into graded subject results, term
// summaries, competition rankings and longitudinal trend classifications.
//
// Everything in this package is a pure function over caller-owned values: there is
// no I/O, no logging and no package level mutable state, so any number of
// goroutines may call into it concurrently. Configuration such as the grade scale
// is always passed in explicitly.
package grading

import "math"

// Epsilon is the tolerance used for every ordering and tie decision on
// floating point scores.
const Epsilon = 0.01

// boundsTolerance absorbs representation noise when comparing range bounds.
const boundsTolerance = 1e-9

// NearlyEqual reports whether a and b are equal within Epsilon.
func NearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// compareDesc orders two scores descending: -1 when a ranks ahead of b, 1 when b
// ranks ahead of a and 0 when they tie within Epsilon.
func compareDesc(a, b float64) int {
	if NearlyEqual(a, b) {
		return 0
	}
	if a > b {
		return -1
	}
	return 1
}

// finiteOrZero coerces NaN and infinities to zero.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// RoundingUnit is the granularity percentages are rounded to before lookup.
type RoundingUnit float64

const (
	RoundWhole RoundingUnit = 1
	RoundHalf  RoundingUnit = 0.5
	RoundTenth RoundingUnit = 0.1
)

// Valid reports whether u is one of the supported units.
func (u RoundingUnit) Valid() bool {
	switch u {
	case RoundWhole, RoundHalf, RoundTenth:
		return true
	default:
		return false
	}
}

func (u RoundingUnit) orDefault() RoundingUnit {
	if u.Valid() {
		return u
	}
	return RoundWhole
}

// RoundToUnit rounds v half-up to the nearest multiple of unit. Unsupported units
// fall back to whole percentages.
func RoundToUnit(v float64, unit RoundingUnit) float64 {
	step := float64(unit.orDefault())
	steps := math.Floor(v/step + 0.5 + boundsTolerance)
	return math.Round(steps*step*1e6) / 1e6
}

// percentage computes part/whole*100, yielding 0 when whole is not positive.
func percentage(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
