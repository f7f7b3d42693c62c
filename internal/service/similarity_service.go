package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/metrics"
	"github.com/arturoeanton/erp-vision-middleware/internal/odata"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Stage names a step of the similarity resolution pipeline.
type Stage string

const (
	StageStaged          Stage = "staged"
	StageVectorExtracted Stage = "vector_extracted"
	StageLibraryLoaded   Stage = "library_loaded"
	StageArchiveBuilt    Stage = "archive_built"
	StageScored          Stage = "scored"
	StageRowExtracted    Stage = "row_extracted"
	StageScoresCached    Stage = "scores_cached"
	StageErpFetched      Stage = "erp_fetched"
	StageMerged          Stage = "merged"
	StageCleaned         Stage = "cleaned"
)

// PipelineError is a fatal resolution failure. Message is safe to show to
// callers; Err is the underlying cause.
type PipelineError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// SimilarityService resolves an image into ranked ERP items that look like it.
type SimilarityService struct {
	files   port.FileStore
	vision  port.VisionProvider
	library port.VectorLibrary
	cache   port.ScoreCache
	catalog *CatalogService
}

// NewSimilarityService wires the pipeline dependencies.
func NewSimilarityService(files port.FileStore, vision port.VisionProvider, library port.VectorLibrary, cache port.ScoreCache, catalog *CatalogService) *SimilarityService {
	return &SimilarityService{
		files:   files,
		vision:  vision,
		library: library,
		cache:   cache,
		catalog: catalog,
	}
}

// Resolve runs one resolution attempt. Stages run strictly in order and the
// first fatal failure short-circuits; the attempt's transient files are
// removed on every exit path.
func (s *SimilarityService) Resolve(ctx context.Context, in domain.ImageInput) (domain.ItemsByOrigin, error) {
	attemptID := uuid.NewString()
	log := slog.With("attempt", attemptID)
	begin := time.Now()

	attempt, err := s.files.NewAttempt(attemptID)
	if err != nil {
		return nil, s.fail(log, StageStaged, "can't prepare staging directories", err)
	}
	defer func() {
		start := time.Now()
		if err := s.files.RemoveAttempt(attempt); err != nil {
			metrics.CleanupErrors.Inc()
			log.Warn("cleanup of transient files failed", "error", err)
		}
		observe(StageCleaned, start)
		log.Info("resolution attempt finished", "duration", time.Since(begin))
	}()

	// Received -> Staged
	start := time.Now()
	staged, err := s.files.Stage(ctx, attempt.ImageDir, in)
	if err != nil {
		return nil, s.fail(log, StageStaged, "can't load image", err)
	}
	observe(StageStaged, start)
	log.Info("image staged", "path", staged.Path, "kind", staged.Kind)

	// Staged -> VectorExtracted
	start = time.Now()
	predictions, err := s.vision.ExtractVectors(ctx, staged.Path)
	if err != nil {
		return nil, s.fail(log, StageVectorExtracted, "can't extract vector for "+staged.Path, err)
	}
	if len(predictions.Predictions) == 0 {
		return nil, s.fail(log, StageVectorExtracted, "can't extract vector for "+staged.Path, port.ErrNoPredictions)
	}
	subject := predictions.Predictions[0]
	observe(StageVectorExtracted, start)
	log.Info("vector extracted", "subjects", len(predictions.Predictions), "prediction", subject.Identifier())

	// VectorExtracted -> LibraryLoaded
	start = time.Now()
	library, err := s.library.SelectVectors(ctx)
	if err != nil {
		return nil, s.fail(log, StageLibraryLoaded, "can't retrieve vector database", err)
	}
	observe(StageLibraryLoaded, start)

	// LibraryLoaded -> ArchiveBuilt
	start = time.Now()
	subjectID := s.files.SubjectID(staged.Path)
	archive, err := s.files.BuildComparisonArchive(attempt.VectorDir, subjectID, subject.FeatureVectors, library)
	if err != nil {
		return nil, s.fail(log, StageArchiveBuilt, "can't create library zip", err)
	}
	observe(StageArchiveBuilt, start)
	log.Info("comparison archive built", "path", archive, "library", len(library))

	// ArchiveBuilt -> Scored
	start = time.Now()
	matrix, err := s.vision.ScoreSimilarity(ctx, archive, in.TopN)
	if err != nil {
		return nil, s.fail(log, StageScored, "can't retrieve similarity scoring", err)
	}
	observe(StageScored, start)

	// Scored -> RowExtracted
	start = time.Now()
	scored, err := s.extractRow(log, matrix, subjectID)
	if err != nil {
		return nil, s.fail(log, StageRowExtracted, "subject image missing from similarity results", err)
	}
	observe(StageRowExtracted, start)

	// RowExtracted -> ScoresCached
	start = time.Now()
	resultHash := newResultHash()
	if err := s.cache.RecordScores(ctx, resultHash, scored); err != nil {
		log.Warn("can't cache similarity scores", "error", err)
	}
	filters := s.buildFilters(log, scored)
	observe(StageScoresCached, start)

	// ScoresCached -> ErpFetched
	start = time.Now()
	items := s.catalog.FetchAll(ctx, filters)
	observe(StageErpFetched, start)

	// ErpFetched -> Merged
	start = time.Now()
	s.merge(ctx, log, items, resultHash)
	observe(StageMerged, start)

	metrics.Resolutions.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return items, nil
}

// extractRow picks the matrix row of the subject by exact identifier and
// decodes its candidates. Candidates whose name is not an encoded library
// entry are skipped.
func (s *SimilarityService) extractRow(log *slog.Logger, m *domain.SimilarityMatrix, subjectID string) ([]domain.ScoredProduct, error) {
	var row *domain.SimilarityRow
	for i := range m.Predictions {
		if s.files.EntryStem(m.Predictions[i].ID) != subjectID {
			continue
		}
		if row != nil {
			return nil, port.ErrAmbiguousMatch
		}
		row = &m.Predictions[i]
	}
	if row == nil {
		return nil, port.ErrNoMatch
	}

	out := make([]domain.ScoredProduct, 0, len(row.SimilarVectors))
	for _, v := range row.SimilarVectors {
		origin, productID, err := s.files.DecodeEntryName(v.ID)
		if err != nil {
			log.Debug("skipping candidate", "id", v.ID, "error", err)
			continue
		}
		out = append(out, domain.ScoredProduct{Origin: origin, ProductID: productID, Score: v.Score})
	}
	return out, nil
}

// buildFilters renders one product filter per origin found among scored.
func (s *SimilarityService) buildFilters(log *slog.Logger, scored []domain.ScoredProduct) map[string]string {
	b := odata.NewBuilder()
	for _, p := range scored {
		b.Add(p.Origin, p.ProductID)
	}

	filters := make(map[string]string, len(b.Origins()))
	for _, origin := range b.Origins() {
		field, err := s.catalog.ProductField(origin)
		if err != nil {
			log.Warn("dropping candidates of unknown origin", "origin", origin)
			continue
		}
		f, err := b.Filter(origin, field)
		if err != nil {
			continue
		}
		filters[origin] = f
	}
	return filters
}

// merge annotates rows with their cached score and ranks them. A failed
// cache read leaves every row unscored.
func (s *SimilarityService) merge(ctx context.Context, log *slog.Logger, items domain.ItemsByOrigin, resultHash string) {
	scores, err := s.cache.ReadScores(ctx, resultHash)
	if err != nil {
		if errors.Is(err, port.ErrCacheMiss) {
			log.Warn("similarity scores not in cache, returning unscored items")
		} else {
			log.Warn("can't read similarity scores from cache, returning unscored items", "error", err)
		}
		return
	}

	for origin, res := range items {
		for i := range res.Values {
			if v, ok := scores[port.ScoreKey(origin, res.Values[i].ProductID)]; ok {
				score := v
				res.Values[i].Score = &score
			}
		}
		SortByScore(res.Values)
	}
}

// SortByScore orders rows by descending score. Equal scores keep their
// input order and rows without a score go last.
func SortByScore(rows []domain.ItemRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Score, rows[j].Score
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a > *b
	})
}

func (s *SimilarityService) fail(log *slog.Logger, stage Stage, msg string, err error) error {
	metrics.StageFailures.WithLabelValues(string(stage)).Inc()
	metrics.Resolutions.WithLabelValues(metrics.OutcomeError).Inc()
	log.Error("similarity resolution failed", "stage", stage, "error", err)
	return &PipelineError{Stage: stage, Message: msg, Err: err}
}

func observe(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

// newResultHash mints the per-attempt cache key: a time-based UUID, or a
// random one if the node id is unavailable.
func newResultHash() string {
	if id, err := uuid.NewUUID(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
