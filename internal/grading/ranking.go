package grading

import "sort"

// Scope names the cohort a ranking pass was computed for.
type Scope string

const (
	ScopeClass  Scope = "class"
	ScopeStream Scope = "class+stream"
)

// TieBasis selects which sort fields must match for two entries to share a position.
type TieBasis string

const (
	// TieOnPointsAndMarks ties entries only when mean grade point and total marks both match.
	TieOnPointsAndMarks TieBasis = "points_and_marks"
	// TieOnPoints ties entries on mean grade point alone; total marks still orders them.
	TieOnPoints TieBasis = "points"
)

// Valid reports whether b is a known basis.
func (b TieBasis) Valid() bool {
	return b == TieOnPointsAndMarks || b == TieOnPoints
}

// RankingEntry is the ephemeral sort record built for one summary.
type RankingEntry struct {
	StudentID      string
	MeanGradePoint float64
	TotalMarks     float64
	TiebreakKey    string
}

// Position is one student's place within a ranked cohort.
type Position struct {
	StudentID string `json:"student_id"`
	Position  int    `json:"position"`
}

// EntryFromSummary builds the ranking entry of s, coercing non-finite numbers to
// zero and falling back to the student id when no admission number is known.
func EntryFromSummary(s TermSummary) RankingEntry {
	key := s.AdmissionNumber
	if key == "" {
		key = s.StudentID
	}
	return RankingEntry{
		StudentID:      s.StudentID,
		MeanGradePoint: finiteOrZero(s.MeanGradePoint),
		TotalMarks:     finiteOrZero(s.TotalMarks),
		TiebreakKey:    key,
	}
}

// Rank orders a single cohort by mean grade point, then total marks, then the
// tiebreak key, and assigns standard competition positions. The caller partitions
// summaries into cohorts. An empty cohort ranks to an empty slice.
func Rank(summaries []TermSummary) []Position {
	return RankWith(summaries, TieOnPointsAndMarks)
}

// RankWith is Rank with an explicit tie basis.
func RankWith(summaries []TermSummary, basis TieBasis) []Position {
	entries := make([]RankingEntry, len(summaries))
	for i, s := range summaries {
		entries[i] = EntryFromSummary(s)
	}
	return RankEntries(entries, basis)
}

// RankEntries ranks prepared entries. Output order is independent of input order.
func RankEntries(entries []RankingEntry, basis TieBasis) []Position {
	if len(entries) == 0 {
		return []Position{}
	}

	sorted := make([]RankingEntry, len(entries))
	copy(sorted, entries)
	// Canonical order first, so the epsilon-aware comparator below never depends
	// on the caller's ordering.
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TiebreakKey != sorted[j].TiebreakKey {
			return sorted[i].TiebreakKey < sorted[j].TiebreakKey
		}
		return sorted[i].StudentID < sorted[j].StudentID
	})
	sort.SliceStable(sorted, func(i, j int) bool {
		return ranksAhead(sorted[i], sorted[j])
	})

	positions := make([]Position, len(sorted))
	current := 0
	for i, e := range sorted {
		if i == 0 || !sameStanding(sorted[i-1], e, basis) {
			current = i + 1
		}
		positions[i] = Position{StudentID: e.StudentID, Position: current}
	}
	return positions
}

func ranksAhead(a, b RankingEntry) bool {
	if c := compareDesc(a.MeanGradePoint, b.MeanGradePoint); c != 0 {
		return c < 0
	}
	if c := compareDesc(a.TotalMarks, b.TotalMarks); c != 0 {
		return c < 0
	}
	if a.TiebreakKey != b.TiebreakKey {
		return a.TiebreakKey < b.TiebreakKey
	}
	return a.StudentID < b.StudentID
}

func sameStanding(a, b RankingEntry, basis TieBasis) bool {
	if !NearlyEqual(a.MeanGradePoint, b.MeanGradePoint) {
		return false
	}
	return basis == TieOnPoints || NearlyEqual(a.TotalMarks, b.TotalMarks)
}

// CohortKey identifies the partition a summary belongs to for scope.
func CohortKey(s TermSummary, scope Scope) string {
	if scope == ScopeStream {
		return s.TermID + "|" + s.ClassID + "|" + s.Stream
	}
	return s.TermID + "|" + s.ClassID
}

// ApplyPositions partitions summaries by scope, ranks every partition once and
// returns copies carrying the resulting positions and cohort sizes. Input order
// is preserved.
func ApplyPositions(summaries []TermSummary, scope Scope, basis TieBasis) []TermSummary {
	out := make([]TermSummary, len(summaries))
	copy(out, summaries)

	cohorts := make(map[string][]int)
	keys := make([]string, 0)
	for i, s := range out {
		key := CohortKey(s, scope)
		if _, ok := cohorts[key]; !ok {
			keys = append(keys, key)
		}
		cohorts[key] = append(cohorts[key], i)
	}

	for _, key := range keys {
		idx := cohorts[key]
		members := make([]TermSummary, len(idx))
		byStudent := make(map[string]int, len(idx))
		for j, i := range idx {
			members[j] = out[i]
			byStudent[out[i].StudentID] = i
		}
		for _, p := range RankWith(members, basis) {
			i := byStudent[p.StudentID]
			if scope == ScopeStream {
				out[i].StreamPosition = p.Position
				out[i].StreamSize = len(idx)
			} else {
				out[i].ClassPosition = p.Position
				out[i].ClassSize = len(idx)
			}
		}
	}
	return out
}
