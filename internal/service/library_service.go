package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// ErrInitializeRunning is returned when a library build is already in progress.
var ErrInitializeRunning = errors.New("vector library initialization already running")

// maxConcurrentExtractions limits parallel download + extraction work.
const maxConcurrentExtractions = 4

// InitializeReport summarizes one library build.
type InitializeReport struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// LibraryService builds and maintains the persisted vector library.
type LibraryService struct {
	files     port.FileStore
	vision    port.VisionProvider
	library   port.VectorLibrary
	catalog   *CatalogService
	imageBase map[string]string // origin -> base URL for relative image names
	running   atomic.Bool
}

// NewLibraryService creates a library service. imageBase resolves item
// images that are stored as bare file names (Business One pictures).
func NewLibraryService(files port.FileStore, vision port.VisionProvider, library port.VectorLibrary, catalog *CatalogService, imageBase map[string]string) *LibraryService {
	return &LibraryService{
		files:     files,
		vision:    vision,
		library:   library,
		catalog:   catalog,
		imageBase: imageBase,
	}
}

// Select returns the whole vector library.
func (s *LibraryService) Select(ctx context.Context) ([]domain.VectorRecord, error) {
	return s.library.SelectVectors(ctx)
}

// Clean empties the vector library.
func (s *LibraryService) Clean(ctx context.Context) (int64, error) {
	n, err := s.library.CleanVectors(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("vector library cleaned", "rows", n)
	return n, nil
}

// Start launches Initialize in the background. done, when not nil, receives
// the outcome once the build finishes.
func (s *LibraryService) Start(done func(*InitializeReport, error)) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrInitializeRunning
	}
	go func() {
		defer s.running.Store(false)
		report, err := s.initialize(context.Background())
		if err != nil {
			slog.Error("vector library initialization failed", "error", err)
		}
		if done != nil {
			done(report, err)
		}
	}()
	return nil
}

// Initialize downloads the image of every ERP item, extracts its vector and
// stores it in the library. Item level failures are counted, not fatal.
func (s *LibraryService) Initialize(ctx context.Context) (*InitializeReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrInitializeRunning
	}
	defer s.running.Store(false)
	return s.initialize(ctx)
}

func (s *LibraryService) initialize(ctx context.Context) (*InitializeReport, error) {
	attempt, err := s.files.NewAttempt("init-" + uuid.NewString())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.files.RemoveAttempt(attempt); err != nil {
			slog.Warn("cleanup after initialization failed", "error", err)
		}
	}()

	items := s.catalog.GetItems(ctx, port.ERPQuery{})
	slog.Info("initializing vector library", "origins", len(items))

	var (
		stored, skipped, failed atomic.Int64
		g                       errgroup.Group
	)
	g.SetLimit(maxConcurrentExtractions)

	for origin, res := range items {
		if res.Error != "" {
			slog.Warn("skipping origin during initialization", "origin", origin, "error", res.Error)
			continue
		}
		for _, row := range res.Values {
			imageURL := s.imageURL(origin, row.Image)
			if imageURL == "" || row.ProductID == "" {
				skipped.Add(1)
				continue
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if err := s.storeItemVector(ctx, attempt.ImageDir, origin, row.ProductID, imageURL); err != nil {
					slog.Error("can't store item vector", "origin", origin, "product", row.ProductID, "error", err)
					failed.Add(1)
					return nil
				}
				stored.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	report := &InitializeReport{Stored: int(stored.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	slog.Info("vector library initialized", "stored", report.Stored, "skipped", report.Skipped, "failed", report.Failed)
	return report, ctx.Err()
}

func (s *LibraryService) storeItemVector(ctx context.Context, dir, origin, productID, imageURL string) error {
	staged, err := s.files.Stage(ctx, dir, domain.ImageInput{SourceURL: imageURL})
	if err != nil {
		return err
	}

	set, err := s.vision.ExtractVectors(ctx, staged.Path)
	if err != nil {
		return err
	}
	if len(set.Predictions) == 0 {
		return port.ErrNoPredictions
	}

	vector, err := json.Marshal(set.Predictions[0].FeatureVectors)
	if err != nil {
		return err
	}

	return s.library.UpsertVector(ctx, domain.VectorRecord{
		Origin:         origin,
		ProductID:      productID,
		Vector:         vector,
		ImageExtension: filepath.Ext(staged.Path),
	})
}

// imageURL returns an absolute URL for an item image, or "" when none.
func (s *LibraryService) imageURL(origin, image string) string {
	image = strings.TrimSpace(image)
	if image == "" {
		return ""
	}
	if u, err := url.Parse(image); err == nil && u.IsAbs() {
		return image
	}
	base := s.imageBase[origin]
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(image)
}
