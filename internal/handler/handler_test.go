package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
	"github.com/arturoeanton/erp-vision-middleware/internal/service"
)

type fakeResolver struct {
	in       domain.ImageInput
	uploaded string
	items    domain.ItemsByOrigin
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, in domain.ImageInput) (domain.ItemsByOrigin, error) {
	f.in = in
	if in.Upload != nil {
		b, _ := io.ReadAll(in.Upload)
		f.uploaded = string(b)
	}
	return f.items, f.err
}

type fakeCatalog struct {
	query port.ERPQuery
}

func (f *fakeCatalog) GetItems(_ context.Context, q port.ERPQuery) domain.ItemsByOrigin {
	f.query = q
	return domain.ItemsByOrigin{
		"b1":  {Values: []domain.ItemRow{{Origin: "b1", ProductID: "A1"}}},
		"byd": {Values: []domain.ItemRow{}, Error: "unauthorized"},
	}
}

func (f *fakeCatalog) GetSalesOrders(_ context.Context, q port.ERPQuery) domain.OrdersByOrigin {
	f.query = q
	return domain.OrdersByOrigin{"b1": {Values: []domain.SalesOrderRow{{Origin: "b1", DocNum: "42"}}}}
}

type fakeLibrary struct {
	startErr error
	started  int
	cleaned  int64
}

func (f *fakeLibrary) Select(context.Context) ([]domain.VectorRecord, error) { return nil, nil }
func (f *fakeLibrary) Start(done func(*service.InitializeReport, error)) error {
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	done(&service.InitializeReport{Stored: 2, Failed: 1}, nil)
	return nil
}
func (f *fakeLibrary) Clean(context.Context) (int64, error) { return f.cleaned, nil }

type fakeClassifier struct{}

func (fakeClassifier) Classify(_ context.Context, text string) (*domain.Classification, error) {
	if text == "fail" {
		return nil, &port.TransportError{Op: "classify", Err: errors.New("timeout")}
	}
	return &domain.Classification{Value: "furniture", Confidence: 0.93}, nil
}

func newTestApp(register ...func(fiber.Router)) *fiber.App {
	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	for _, r := range register {
		r(app)
	}
	return app
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSimilarItems_URL(t *testing.T) {
	score := 0.9
	r := &fakeResolver{items: domain.ItemsByOrigin{"b1": {Values: []domain.ItemRow{{Origin: "b1", ProductID: "A1", Score: &score}}}}}
	app := newTestApp(NewSimilarityHandler(r, 4).Register)

	req := httptest.NewRequest(http.MethodPost, "/SimilarItems", strings.NewReader(`{"url":"http://img/chair.jpg","similarItems":6}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]domain.OriginItems
	decodeBody(t, resp, &body)
	require.Len(t, body["b1"].Values, 1)
	assert.InDelta(t, 0.9, *body["b1"].Values[0].Score, 1e-9)
	assert.Equal(t, "http://img/chair.jpg", r.in.SourceURL)
	assert.Equal(t, 6, r.in.TopN)
	assert.Nil(t, r.in.Upload)
}

func TestSimilarItems_DefaultTopN(t *testing.T) {
	r := &fakeResolver{items: domain.ItemsByOrigin{}}
	app := newTestApp(NewSimilarityHandler(r, 4).Register)

	req := httptest.NewRequest(http.MethodPost, "/SimilarItems", strings.NewReader(`{"url":"http://img/chair.jpg"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, r.in.TopN)
}

func TestSimilarItems_Upload(t *testing.T) {
	r := &fakeResolver{items: domain.ItemsByOrigin{}}
	app := newTestApp(NewSimilarityHandler(r, 4).Register)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "chair.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png-bytes"))
	require.NoError(t, mw.WriteField("similarItems", "2"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/SimilarItems", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "png-bytes", r.uploaded)
	assert.Empty(t, r.in.SourceURL)
	assert.Equal(t, 2, r.in.TopN)
}

func TestSimilarItems_MissingInput(t *testing.T) {
	r := &fakeResolver{}
	app := newTestApp(NewSimilarityHandler(r, 4).Register)

	req := httptest.NewRequest(http.MethodPost, "/SimilarItems", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSimilarItems_PipelineFailure(t *testing.T) {
	r := &fakeResolver{err: &service.PipelineError{
		Stage:   service.StageVectorExtracted,
		Message: "can't extract vector for files/tmp/x/1.jpg",
		Err:     &port.ServiceError{Op: "extract vectors", Status: 500, Message: "model not loaded"},
	}}
	app := newTestApp(NewSimilarityHandler(r, 4).Register)

	req := httptest.NewRequest(http.MethodPost, "/SimilarItems", strings.NewReader(`{"url":"http://img/x.jpg"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "vector_extracted", body["stage"])
	assert.Equal(t, "can't extract vector for files/tmp/x/1.jpg", body["message"])
	assert.Contains(t, body["cause"], "model not loaded")
}

func TestCatalog_ItemsPassesODataOptions(t *testing.T) {
	cat := &fakeCatalog{}
	app := newTestApp(NewCatalogHandler(cat).Register)

	req := httptest.NewRequest(http.MethodGet, "/Items?$filter=ItemCode%20eq%20'A1'&$top=5&$skip=10", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, port.ERPQuery{Filter: "ItemCode eq 'A1'", Top: 5, Skip: 10}, cat.query)

	var body map[string]domain.OriginItems
	decodeBody(t, resp, &body)
	assert.Equal(t, "unauthorized", body["byd"].Error)
	assert.Len(t, body["b1"].Values, 1)
}

func TestCatalog_SalesOrders(t *testing.T) {
	app := newTestApp(NewCatalogHandler(&fakeCatalog{}).Register)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/SalesOrders?$top=bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]domain.OriginOrders
	decodeBody(t, resp, &body)
	assert.Equal(t, "42", body["b1"].Values[0].DocNum)
}

func TestLibrary_Routes(t *testing.T) {
	lib := &fakeLibrary{cleaned: 3}
	jobs := NewJobTracker()
	app := newTestApp(NewLibraryHandler(lib, jobs).Register, NewJobsHandler(jobs).Register)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/Initialize", nil))
	require.NoError(t, err)
	var msg map[string]string
	decodeBody(t, resp, &msg)
	assert.Equal(t, "executing", msg["message"])
	require.NotEmpty(t, msg["job"])
	assert.Equal(t, 1, lib.started)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/jobs/"+msg["job"], nil))
	require.NoError(t, err)
	var job JobStatus
	decodeBody(t, resp, &job)
	assert.Equal(t, JobComplete, job.Status)
	require.NotNil(t, job.Report)
	assert.Equal(t, 2, job.Report.Stored)

	lib.startErr = service.ErrInitializeRunning
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/Initialize", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/SelectDB", nil))
	require.NoError(t, err)
	var records []domain.VectorRecord
	decodeBody(t, resp, &records)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/CleanDB", nil))
	require.NoError(t, err)
	var cleaned map[string]int64
	decodeBody(t, resp, &cleaned)
	assert.EqualValues(t, 3, cleaned["deleted"])
}

func TestJobs_UnknownAndFinishedStream(t *testing.T) {
	jobs := NewJobTracker()
	app := newTestApp(NewJobsHandler(jobs).Register)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	jobs.CreateJob("j1")
	jobs.FinishJob("j1", nil, errors.New("erp down"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/jobs/j1/stream", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: error")
	assert.Contains(t, string(body), "erp down")
}

func TestJobTracker_NotifiesSubscribers(t *testing.T) {
	jobs := NewJobTracker()
	jobs.CreateJob("j1")
	ch := jobs.Subscribe("j1")

	jobs.FinishJob("j1", &service.InitializeReport{Stored: 1}, nil)

	update := <-ch
	assert.Equal(t, JobComplete, update.Status)
	assert.Equal(t, 1, update.Report.Stored)
	jobs.Unsubscribe("j1", ch)
}

func TestJobs_StreamDeliversOutcomeOfRunningJob(t *testing.T) {
	jobs := NewJobTracker()
	app := newTestApp(NewJobsHandler(jobs).Register)
	jobs.CreateJob("j2")

	go func() {
		time.Sleep(50 * time.Millisecond)
		jobs.FinishJob("j2", &service.InitializeReport{Stored: 4}, nil)
	}()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/jobs/j2/stream", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: complete")
}

func TestJobTracker_FinishWhileUnsubscribing(t *testing.T) {
	jobs := NewJobTracker()
	jobs.CreateJob("j1")

	var wg sync.WaitGroup
	for range 50 {
		ch := jobs.Subscribe("j1")
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs.Unsubscribe("j1", ch)
		}()
	}
	jobs.FinishJob("j1", nil, nil)
	wg.Wait()

	job, ok := jobs.GetJob("j1")
	require.True(t, ok)
	assert.Equal(t, JobComplete, job.Status)
}

func TestClassify(t *testing.T) {
	app := newTestApp(NewClassifyHandler(fakeClassifier{}).Register)

	req := httptest.NewRequest(http.MethodPost, "/Classify", strings.NewReader(`{"text":"oak dining chair"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out domain.Classification
	decodeBody(t, resp, &out)
	assert.Equal(t, "furniture", out.Value)

	req = httptest.NewRequest(http.MethodPost, "/Classify", strings.NewReader(`{"text":"fail"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/Classify", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
