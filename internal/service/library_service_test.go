package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/erp"
	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

func TestLibrary_InitializeStoresItemVectors(t *testing.T) {
	var gets atomic.Int32
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodGet {
			gets.Add(1)
			_, _ = w.Write([]byte("png-bytes"))
		}
	}))
	defer images.Close()

	b1 := &fakeERP{origin: erp.OriginB1, items: []string{
		`{"ItemCode":"A1","Picture":"chair.png"}`,
		`{"ItemCode":"A2","Picture":""}`,
		`{"ItemCode":"A3","Picture":"missing.png"}`,
	}}
	byd := &fakeERP{origin: erp.OriginByD, items: []string{
		`{"ProductID":"P1","ImageURL":"` + images.URL + `/p1.jpg"}`,
	}}
	store, tempDir, vectorDir := newFileStore(t)
	library := &fakeLibrary{}
	vision := &fakeVision{}
	svc := NewLibraryService(store, vision, library, NewCatalogService(port.NewERPRegistry(b1, byd)),
		map[string]string{erp.OriginB1: images.URL + "/pictures/"})

	report, err := svc.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &InitializeReport{Stored: 2, Skipped: 1, Failed: 1}, report)
	assert.Equal(t, int32(2), gets.Load())

	byKey := map[string]domain.VectorRecord{}
	for _, r := range library.records {
		byKey[r.Origin+"/"+r.ProductID] = r
	}
	require.Contains(t, byKey, "b1/A1")
	require.Contains(t, byKey, "byd/P1")
	assert.Equal(t, ".png", byKey["b1/A1"].ImageExtension)
	assert.Equal(t, ".jpg", byKey["byd/P1"].ImageExtension)
	assert.JSONEq(t, "[0.1,0.2,0.3]", string(byKey["b1/A1"].Vector))

	requireEmptyDir(t, tempDir)
	requireEmptyDir(t, vectorDir)
}

func TestLibrary_InitializeRejectsConcurrentRun(t *testing.T) {
	store, _, _ := newFileStore(t)
	svc := NewLibraryService(store, &fakeVision{}, &fakeLibrary{}, NewCatalogService(port.NewERPRegistry()), nil)

	svc.running.Store(true)
	_, err := svc.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrInitializeRunning)
	assert.ErrorIs(t, svc.Start(nil), ErrInitializeRunning)

	svc.running.Store(false)
	done := make(chan *InitializeReport, 1)
	require.NoError(t, svc.Start(func(r *InitializeReport, err error) {
		assert.NoError(t, err)
		done <- r
	}))
	select {
	case r := <-done:
		assert.Equal(t, &InitializeReport{}, r)
	case <-time.After(time.Second):
		t.Fatal("initialization did not finish")
	}
	assert.Eventually(t, func() bool { return !svc.running.Load() }, time.Second, 10*time.Millisecond)
}

func TestLibrary_SelectAndClean(t *testing.T) {
	store, _, _ := newFileStore(t)
	library := &fakeLibrary{records: []domain.VectorRecord{{Origin: "b1", ProductID: "A1"}, {Origin: "byd", ProductID: "P1"}}}
	svc := NewLibraryService(store, &fakeVision{}, library, NewCatalogService(port.NewERPRegistry()), nil)

	recs, err := svc.Select(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	n, err := svc.Clean(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	recs, err = svc.Select(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLibrary_ImageURL(t *testing.T) {
	svc := &LibraryService{imageBase: map[string]string{"b1": "http://b1/pictures/"}}

	assert.Equal(t, "http://cdn/x.jpg", svc.imageURL("byd", "http://cdn/x.jpg"))
	assert.Equal(t, "http://b1/pictures/red%20chair.jpg", svc.imageURL("b1", "red chair.jpg"))
	assert.Empty(t, svc.imageURL("byd", "relative.jpg"))
	assert.Empty(t, svc.imageURL("b1", "  "))
}
