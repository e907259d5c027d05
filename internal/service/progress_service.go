package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-progress-api/internal/grading"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type termReader interface {
	ListByYear(ctx context.Context, academicYear string) ([]models.Term, error)
}

type rosterReader interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.RosterStudent, error)
	GetStudent(ctx context.Context, studentID, academicYear string) (*models.RosterStudent, error)
	GetClass(ctx context.Context, classID string) (*models.Class, error)
	ListClassesByYear(ctx context.Context, academicYear string) ([]models.Class, error)
}

type marksReader interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.AssessmentMark, error)
}

type termSummaryStore interface {
	ReplaceCohort(ctx context.Context, classID, termID string, records []models.TermSummaryRecord) error
	ListByClassTerm(ctx context.Context, classID, termID string) ([]models.TermSummaryRecord, error)
	ListByStudent(ctx context.Context, studentID, academicYear string) ([]models.TermSummaryRecord, error)
}

type studentTrendStore interface {
	Upsert(ctx context.Context, record *models.StudentTrendRecord) error
	GetByStudent(ctx context.Context, studentID, academicYear string) (*models.StudentTrendRecord, error)
}

type scaleResolver interface {
	ResolveDefault(ctx context.Context, academicLevel string) (grading.GradeScale, error)
}

type progressRecorder interface {
	RecordProgressRun(scope string, result models.BatchResult, err error, duration time.Duration)
}

// ProgressServiceConfig tunes regeneration.
type ProgressServiceConfig struct {
	CohortConcurrency    int
	TieBasis             grading.TieBasis
	DefaultAcademicLevel string
	RankingTTL           time.Duration
}

// ProgressService regenerates term summaries, rankings and trends, and serves
// the stored results.
type ProgressService struct {
	terms     termReader
	roster    rosterReader
	marks     marksReader
	summaries termSummaryStore
	trends    studentTrendStore
	scales    scaleResolver
	cache     readThroughCache
	metrics   progressRecorder
	logger    *zap.Logger
	cfg       ProgressServiceConfig
}

// NewProgressService wires the orchestrator. cache and metrics may be nil.
func NewProgressService(
	terms termReader,
	roster rosterReader,
	marks marksReader,
	summaries termSummaryStore,
	trends studentTrendStore,
	scales scaleResolver,
	cache readThroughCache,
	metrics progressRecorder,
	logger *zap.Logger,
	cfg ProgressServiceConfig,
) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CohortConcurrency <= 0 {
		cfg.CohortConcurrency = 1
	}
	if !cfg.TieBasis.Valid() {
		cfg.TieBasis = grading.TieOnPointsAndMarks
	}
	return &ProgressService{
		terms:     terms,
		roster:    roster,
		marks:     marks,
		summaries: summaries,
		trends:    trends,
		scales:    scales,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// classPlan is everything a class run needs before touching marks.
type classPlan struct {
	class  models.Class
	year   string
	terms  []models.Term
	scale  grading.GradeScale
	roster []models.RosterStudent
}

// studentMarks groups a term's marks by student then subject.
type studentMarks map[string]map[string][]models.AssessmentMark

// GenerateYear regenerates every class of an academic year. Classes run
// concurrently up to CohortConcurrency; a class that fails for any reason is
// reported as a batch error and does not stop the others. Only cancellation of
// ctx fails the run.
func (s *ProgressService) GenerateYear(ctx context.Context, academicYear string) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.record("year", result, err, start) }()

	if _, err = s.loadTerms(ctx, academicYear); err != nil {
		return result, err
	}
	classes, err := s.roster.ListClassesByYear(ctx, academicYear)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.CohortConcurrency)
	for _, class := range classes {
		class := class
		g.Go(func() error {
			classResult, classErr := s.generateClass(gctx, class.ID, academicYear)
			mu.Lock()
			defer mu.Unlock()
			result.Merge(classResult)
			if classErr == nil || ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("class skipped", zap.String("class_id", class.ID), zap.String("academic_year", academicYear), zap.Error(classErr))
			result.Fail(models.BatchItemError{ClassID: class.ID, Message: classErr.Error()})
			return nil
		})
	}
	_ = g.Wait()
	sortBatchErrors(result.Errors)
	if err = ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// GenerateClass regenerates one class for an academic year.
func (s *ProgressService) GenerateClass(ctx context.Context, classID, academicYear string) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.record("class", result, err, start) }()
	return s.generateClass(ctx, classID, academicYear)
}

func (s *ProgressService) generateClass(ctx context.Context, classID, academicYear string) (models.BatchResult, error) {
	var result models.BatchResult
	plan, err := s.planClass(ctx, classID, academicYear)
	if err != nil {
		return result, err
	}
	log := s.logger.With(zap.String("class_id", classID), zap.String("academic_year", plan.year))
	if len(plan.roster) == 0 {
		log.Info("class has no active students")
		return result, nil
	}

	studentIDs := make([]string, len(plan.roster))
	for i, st := range plan.roster {
		studentIDs[i] = st.StudentID
	}
	marksByTerm := make(map[string]studentMarks, len(plan.terms))
	for _, term := range plan.terms {
		marks, err := s.marks.List(ctx, models.MarkFilter{TermID: term.ID, StudentIDs: studentIDs})
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment marks")
		}
		marksByTerm[term.ID] = groupMarks(marks)
	}

	// Terms without any marks for the cohort have not been sat yet.
	active := make([]models.Term, 0, len(plan.terms))
	for _, term := range plan.terms {
		if len(marksByTerm[term.ID]) > 0 {
			active = append(active, term)
		}
	}

	// Every student is summarized before any cohort is ranked.
	cohorts := make(map[string][]grading.TermSummary, len(active))
	var processed []string
	failed := make(map[string]struct{})
	for _, student := range plan.roster {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		summaries, err := summarizeStudent(student, plan, active, marksByTerm)
		if err != nil {
			log.Warn("student skipped", zap.String("student_id", student.StudentID), zap.Error(err))
			result.Fail(batchItem(student, err))
			failed[student.StudentID] = struct{}{}
			continue
		}
		for _, summary := range summaries {
			cohorts[summary.TermID] = append(cohorts[summary.TermID], summary)
		}
		processed = append(processed, student.StudentID)
	}

	// Skipped students keep their last stored summary so the cohort rewrite
	// does not drop them.
	if len(failed) > 0 {
		for _, term := range active {
			stored, err := s.summaries.ListByClassTerm(ctx, classID, term.ID)
			if err != nil {
				return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
			}
			for _, rec := range stored {
				if _, ok := failed[rec.StudentID]; ok {
					cohorts[term.ID] = append(cohorts[term.ID], rec.TermSummary)
				}
			}
		}
	}

	runID := uuid.NewString()
	for _, term := range active {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.persistCohort(ctx, classID, term.ID, runID, cohorts[term.ID]); err != nil {
			return result, err
		}
	}

	for _, studentID := range processed {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.refreshTrend(ctx, studentID, plan.year, runID); err != nil {
			log.Warn("trend refresh failed", zap.String("student_id", studentID), zap.Error(err))
			result.Fail(models.BatchItemError{StudentID: studentID, ClassID: classID, Message: err.Error()})
			continue
		}
		result.SuccessCount++
	}

	s.invalidateRankings(ctx, classID)
	log.Info("class progress regenerated", zap.String("run_id", runID), zap.Int("success_count", result.SuccessCount), zap.Int("error_count", result.ErrorCount))
	return result, nil
}

// GenerateStudent recomputes one student and re-ranks their cohorts against
// the stored summaries of their peers.
func (s *ProgressService) GenerateStudent(ctx context.Context, studentID, academicYear string) (result models.BatchResult, err error) {
	start := time.Now()
	defer func() { s.record("student", result, err, start) }()

	student, err := s.roster.GetStudent(ctx, studentID, academicYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, appErrors.Clone(appErrors.ErrNotFound, "student has no active enrollment in academic year")
		}
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	plan, err := s.planClass(ctx, student.ClassID, academicYear)
	if err != nil {
		return result, err
	}
	plan.roster = []models.RosterStudent{*student}

	// A term is active when the student has marks in it or peers were already
	// ranked for it.
	marksByTerm := make(map[string]studentMarks, len(plan.terms))
	peersByTerm := make(map[string][]models.TermSummaryRecord, len(plan.terms))
	active := make([]models.Term, 0, len(plan.terms))
	for _, term := range plan.terms {
		marks, err := s.marks.List(ctx, models.MarkFilter{TermID: term.ID, StudentIDs: []string{studentID}})
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment marks")
		}
		peers, err := s.summaries.ListByClassTerm(ctx, student.ClassID, term.ID)
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
		}
		marksByTerm[term.ID] = groupMarks(marks)
		peersByTerm[term.ID] = peers
		if len(marks) > 0 || len(peers) > 0 {
			active = append(active, term)
		}
	}

	summaries, err := summarizeStudent(*student, plan, active, marksByTerm)
	if err != nil {
		s.logger.Warn("student skipped", zap.String("student_id", studentID), zap.Error(err))
		result.Fail(batchItem(*student, err))
		return result, nil
	}

	runID := uuid.NewString()
	for _, summary := range summaries {
		peers := peersByTerm[summary.TermID]
		cohort := make([]grading.TermSummary, 0, len(peers)+1)
		for _, peer := range peers {
			if peer.StudentID != studentID {
				cohort = append(cohort, peer.TermSummary)
			}
		}
		cohort = append(cohort, summary)
		if err := s.persistCohort(ctx, student.ClassID, summary.TermID, runID, cohort); err != nil {
			return result, err
		}
	}

	if err := s.refreshTrend(ctx, studentID, plan.year, runID); err != nil {
		result.Fail(models.BatchItemError{StudentID: studentID, ClassID: student.ClassID, Message: err.Error()})
		return result, nil
	}
	result.SuccessCount = 1
	s.invalidateRankings(ctx, student.ClassID)
	return result, nil
}

func (s *ProgressService) planClass(ctx context.Context, classID, academicYear string) (classPlan, error) {
	class, err := s.roster.GetClass(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classPlan{}, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return classPlan{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if academicYear == "" {
		academicYear = class.AcademicYear
	}
	if class.AcademicYear != "" && class.AcademicYear != academicYear {
		return classPlan{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("class %s belongs to academic year %s", classID, class.AcademicYear))
	}

	terms, err := s.loadTerms(ctx, academicYear)
	if err != nil {
		return classPlan{}, err
	}

	level := class.AcademicLevel
	if level == "" {
		level = s.cfg.DefaultAcademicLevel
	}
	scale, err := s.scales.ResolveDefault(ctx, level)
	if err != nil {
		return classPlan{}, err
	}

	roster, err := s.roster.ListActiveByClass(ctx, classID)
	if err != nil {
		return classPlan{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	return classPlan{class: *class, year: academicYear, terms: terms, scale: scale, roster: roster}, nil
}

func (s *ProgressService) loadTerms(ctx context.Context, academicYear string) ([]models.Term, error) {
	terms, err := s.terms.ListByYear(ctx, academicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic calendar")
	}
	if len(terms) == 0 {
		return nil, configurationFailure(&grading.ConfigurationError{
			Resource: "academic_calendar",
			Reason:   fmt.Sprintf("no terms configured for academic year %q", academicYear),
		})
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Number < terms[j].Number })
	return terms, nil
}

// summarizeStudent computes one summary per term. A student without marks in a
// term gets the all-zero summary so they are still ranked.
func summarizeStudent(student models.RosterStudent, plan classPlan, terms []models.Term, marksByTerm map[string]studentMarks) ([]grading.TermSummary, error) {
	summaries := make([]grading.TermSummary, 0, len(terms))
	for _, term := range terms {
		bySubject := marksByTerm[term.ID][student.StudentID]
		subjectIDs := make([]string, 0, len(bySubject))
		for subjectID := range bySubject {
			subjectIDs = append(subjectIDs, subjectID)
		}
		sort.Strings(subjectIDs)

		results := make([]grading.SubjectResult, 0, len(subjectIDs))
		for _, subjectID := range subjectIDs {
			marks := bySubject[subjectID]
			scores := make([]grading.AssessmentScore, len(marks))
			for i, m := range marks {
				scores[i] = m.Score()
			}
			result, err := grading.ComputeSubjectResult(scores, plan.scale, subjectID)
			if err != nil {
				return nil, termError{termID: term.ID, err: err}
			}
			result.SubjectName = marks[0].SubjectName
			results = append(results, result)
		}

		summary := grading.ComputeTermSummary(results, plan.scale).WithIdentity(grading.TermSummary{
			StudentID:       student.StudentID,
			AdmissionNumber: student.AdmissionNumber,
			ClassID:         plan.class.ID,
			Stream:          student.Stream,
			AcademicYear:    plan.year,
			TermID:          term.ID,
			TermNumber:      term.Number,
		})
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// persistCohort ranks a complete cohort by class and by stream, then replaces
// its stored summaries.
func (s *ProgressService) persistCohort(ctx context.Context, classID, termID, runID string, cohort []grading.TermSummary) error {
	ranked := grading.ApplyPositions(cohort, grading.ScopeClass, s.cfg.TieBasis)
	ranked = grading.ApplyPositions(ranked, grading.ScopeStream, s.cfg.TieBasis)

	now := time.Now().UTC()
	records := make([]models.TermSummaryRecord, len(ranked))
	for i, summary := range ranked {
		records[i] = models.TermSummaryRecord{TermSummary: summary, RunID: runID, GeneratedAt: now}
	}
	if err := s.summaries.ReplaceCohort(ctx, classID, termID, records); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store term summaries")
	}
	return nil
}

// refreshTrend analyzes the student's full stored history and stores the
// result under academicYear.
func (s *ProgressService) refreshTrend(ctx context.Context, studentID, academicYear, runID string) error {
	history, err := s.summaries.ListByStudent(ctx, studentID, "")
	if err != nil {
		return fmt.Errorf("load summary history: %w", err)
	}
	summaries := make([]grading.TermSummary, len(history))
	for i, h := range history {
		summaries[i] = h.TermSummary
	}
	trend := grading.AnalyzeStudent(summaries)
	trend.StudentID = studentID

	record := &models.StudentTrendRecord{
		StudentID:          studentID,
		AcademicYear:       academicYear,
		RiskLevel:          trend.Risk.Level,
		InterventionNeeded: trend.Risk.InterventionNeeded,
		Analysis:           models.TrendAnalysis(trend),
		RunID:              runID,
	}
	if err := s.trends.Upsert(ctx, record); err != nil {
		return fmt.Errorf("store trend: %w", err)
	}
	return nil
}

// StudentProgress returns a student's stored summaries and trend for a year.
func (s *ProgressService) StudentProgress(ctx context.Context, studentID, academicYear string) (*models.StudentProgress, error) {
	records, err := s.summaries.ListByStudent(ctx, studentID, academicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term summaries")
	}
	progress := &models.StudentProgress{StudentID: studentID, AcademicYear: academicYear, Summaries: records}
	if progress.Summaries == nil {
		progress.Summaries = []models.TermSummaryRecord{}
	}

	if academicYear != "" {
		trend, err := s.trends.GetByStudent(ctx, studentID, academicYear)
		switch {
		case err == nil:
			progress.Trend = trend
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student trend")
		}
	}

	if len(progress.Summaries) == 0 && progress.Trend == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no progress generated for student")
	}
	return progress, nil
}

func rankingKey(classID, termID, stream string) string {
	return cache.Key("ranking", classID, termID, stream)
}

// ClassRanking lists a class cohort for a term in position order. When stream
// is set only that stream is returned, ordered by stream position.
func (s *ProgressService) ClassRanking(ctx context.Context, classID, termID, stream string) (*models.ClassRanking, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	key := rankingKey(classID, termID, stream)
	var ranking models.ClassRanking
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &ranking); hit {
			return &ranking, nil
		}
	}

	records, err := s.summaries.ListByClassTerm(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class ranking")
	}

	ranking = models.ClassRanking{ClassID: classID, TermID: termID, Stream: stream, Entries: []models.ClassRankingEntry{}}
	for _, rec := range records {
		if stream != "" && rec.Stream != stream {
			continue
		}
		if ranking.GeneratedAt == nil || rec.GeneratedAt.After(*ranking.GeneratedAt) {
			generated := rec.GeneratedAt
			ranking.GeneratedAt = &generated
		}
		ranking.Entries = append(ranking.Entries, models.ClassRankingEntry{
			StudentID:         rec.StudentID,
			AdmissionNumber:   rec.AdmissionNumber,
			Stream:            rec.Stream,
			MeanGradePoint:    rec.MeanGradePoint,
			TotalMarks:        rec.TotalMarks,
			AveragePercentage: rec.AveragePercentage,
			OverallGrade:      rec.OverallGrade,
			ClassPosition:     rec.ClassPosition,
			ClassSize:         rec.ClassSize,
			StreamPosition:    rec.StreamPosition,
			StreamSize:        rec.StreamSize,
		})
	}
	if stream != "" {
		sort.SliceStable(ranking.Entries, func(i, j int) bool {
			return ranking.Entries[i].StreamPosition < ranking.Entries[j].StreamPosition
		})
	}

	if s.cache != nil && len(ranking.Entries) > 0 {
		_ = s.cache.Set(ctx, key, ranking, s.cfg.RankingTTL)
	}
	return &ranking, nil
}

// ClassDistribution grades a class's stored results for a term against its
// current default scale. With subjectID set, that subject's percentages are
// used; otherwise each student's average percentage.
func (s *ProgressService) ClassDistribution(ctx context.Context, classID, termID, subjectID string) (*models.ClassDistribution, error) {
	if termID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId is required")
	}
	class, err := s.roster.GetClass(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	level := class.AcademicLevel
	if level == "" {
		level = s.cfg.DefaultAcademicLevel
	}
	scale, err := s.scales.ResolveDefault(ctx, level)
	if err != nil {
		return nil, err
	}

	records, err := s.summaries.ListByClassTerm(ctx, classID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term summaries")
	}
	percentages := make([]float64, 0, len(records))
	for _, rec := range records {
		if subjectID == "" {
			percentages = append(percentages, rec.AveragePercentage)
			continue
		}
		for _, sr := range rec.SubjectResults {
			if sr.SubjectID == subjectID {
				percentages = append(percentages, sr.Percentage)
				break
			}
		}
	}

	return &models.ClassDistribution{
		ClassID:   classID,
		TermID:    termID,
		SubjectID: subjectID,
		ScaleID:   scale.ID,
		Report:    scale.Distribution(percentages, subjectID),
	}, nil
}

func (s *ProgressService) invalidateRankings(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.Key("ranking", classID, "*")); err != nil {
		s.logger.Warn("ranking cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}

func (s *ProgressService) record(scope string, result models.BatchResult, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordProgressRun(scope, result, err, time.Since(start))
	}
}

func groupMarks(marks []models.AssessmentMark) studentMarks {
	grouped := make(studentMarks)
	for _, m := range marks {
		bySubject, ok := grouped[m.StudentID]
		if !ok {
			bySubject = make(map[string][]models.AssessmentMark)
			grouped[m.StudentID] = bySubject
		}
		bySubject[m.SubjectID] = append(bySubject[m.SubjectID], m)
	}
	return grouped
}

type termError struct {
	termID string
	err    error
}

func (e termError) Error() string { return fmt.Sprintf("term %s: %v", e.termID, e.err) }
func (e termError) Unwrap() error { return e.err }

func batchItem(student models.RosterStudent, err error) models.BatchItemError {
	item := models.BatchItemError{StudentID: student.StudentID, ClassID: student.ClassID, Message: err.Error()}
	var te termError
	if errors.As(err, &te) {
		item.TermID = te.termID
	}
	return item
}

func sortBatchErrors(items []models.BatchItemError) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ClassID != items[j].ClassID {
			return items[i].ClassID < items[j].ClassID
		}
		return items[i].StudentID < items[j].StudentID
	})
}
