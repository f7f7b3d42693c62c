package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/cache"
	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/files"
	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// fakeVision extracts a fixed vector and scores archive entries from a table.
type fakeVision struct {
	mu         sync.Mutex
	extractErr error
	scoreErr   error
	scores     map[string]float64 // archive entry name -> score against the subject
	extracted  []string
	scored     []string
	topN       int
	rowIDs     func(subjectEntry string) []string
}

func (f *fakeVision) ExtractVectors(_ context.Context, path string) (*domain.PredictionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, path)
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return &domain.PredictionSet{Predictions: []domain.Prediction{
		{Name: filepath.Base(path), FeatureVectors: []float64{0.1, 0.2, 0.3}},
	}}, nil
}

func (f *fakeVision) ScoreSimilarity(_ context.Context, archivePath string, topN int) (*domain.SimilarityMatrix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scored = append(f.scored, archivePath)
	f.topN = topN
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var subject string
	var library []string
	for _, e := range zr.File {
		if _, ok := f.scores[e.Name]; ok {
			library = append(library, e.Name)
			continue
		}
		subject = e.Name
	}

	m := &domain.SimilarityMatrix{}
	ids := []string{subject}
	if f.rowIDs != nil {
		ids = f.rowIDs(subject)
	}
	for _, id := range ids {
		row := domain.SimilarityRow{ID: id}
		for _, name := range library {
			row.SimilarVectors = append(row.SimilarVectors, domain.SimilarVector{ID: name, Score: f.scores[name]})
		}
		m.Predictions = append(m.Predictions, row)
	}
	// Library rows compare against the rest of the batch as well.
	for _, name := range library {
		m.Predictions = append(m.Predictions, domain.SimilarityRow{ID: name, SimilarVectors: []domain.SimilarVector{{ID: subject, Score: f.scores[name]}}})
	}
	return m, nil
}

func (f *fakeVision) Classify(context.Context, string) (*domain.Classification, error) {
	return &domain.Classification{Value: "other", Confidence: 1}, nil
}

// fakeLibrary is an in-memory vector library and price store.
type fakeLibrary struct {
	mu        sync.Mutex
	records   []domain.VectorRecord
	selectErr error
	selects   int
	prices    []domain.PriceRow
}

func (l *fakeLibrary) SelectVectors(context.Context) ([]domain.VectorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selects++
	if l.selectErr != nil {
		return nil, l.selectErr
	}
	return append([]domain.VectorRecord(nil), l.records...), nil
}

func (l *fakeLibrary) SelectProductIDs(_ context.Context, origin string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for _, r := range l.records {
		if r.Origin == origin {
			ids = append(ids, r.ProductID)
		}
	}
	return ids, nil
}

func (l *fakeLibrary) UpsertVector(_ context.Context, rec domain.VectorRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.records {
		if r.Origin == rec.Origin && r.ProductID == rec.ProductID {
			l.records[i] = rec
			return nil
		}
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLibrary) CleanVectors(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := int64(len(l.records))
	l.records = nil
	return n, nil
}

func (l *fakeLibrary) InsertPrice(_ context.Context, row domain.PriceRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prices = append(l.prices, row)
	return nil
}

// fakeERP answers item queries from canned raw rows.
type fakeERP struct {
	mu      sync.Mutex
	origin  string
	field   string
	items   []string
	orders  []string
	prices  []string
	err     error
	filters []string
}

func (e *fakeERP) Origin() string       { return e.origin }
func (e *fakeERP) ProductField() string { return e.field }

func (e *fakeERP) respond(q port.ERPQuery, rows []string) (*port.ERPResponse, error) {
	e.mu.Lock()
	e.filters = append(e.filters, q.Filter)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	resp := &port.ERPResponse{}
	for _, r := range rows {
		resp.Value = append(resp.Value, json.RawMessage(r))
	}
	return resp, nil
}

func (e *fakeERP) GetItems(_ context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	return e.respond(q, e.items)
}

func (e *fakeERP) GetSalesOrders(_ context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	return e.respond(q, e.orders)
}

func (e *fakeERP) GetItemPrice(_ context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	return e.respond(q, e.prices)
}

func (e *fakeERP) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.filters)
}

// failingReads wraps a cache and fails every read.
type failingReads struct {
	port.ScoreCache
}

func (failingReads) ReadScores(context.Context, string) (map[string]float64, error) {
	return nil, errors.New("connection refused")
}

// failingWrites wraps a cache and fails every write.
type failingWrites struct {
	port.ScoreCache
}

func (failingWrites) RecordScores(context.Context, string, []domain.ScoredProduct) error {
	return errors.New("READONLY You can't write against a read only replica")
}

func newMiniCache(t *testing.T) *cache.ScoreCache {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewWithClient(client, "test", 0)
}

func newFileStore(t *testing.T) (store *files.Store, tempDir, vectorDir string) {
	t.Helper()
	tempDir, vectorDir = t.TempDir(), t.TempDir()
	store = files.NewStore(files.Config{TempDir: tempDir, VectorDir: vectorDir, Separator: "__", KeepExt: ".md"}, nil)
	return store, tempDir, vectorDir
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, "jpeg-bytes")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	require.Empty(t, entries, "expected %s to be empty", dir)
}
