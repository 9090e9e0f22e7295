package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/engine"
	storemem "github.com/brandsignal/harvester/internal/store/memory"
)

type fakeCollector struct {
	mu      sync.Mutex
	store   *storemem.Store
	started chan string
}

func newFakeCollector(store *storemem.Store) *fakeCollector {
	return &fakeCollector{store: store, started: make(chan string, 4)}
}

func (c *fakeCollector) CollectRun(ctx context.Context, runID, query string) (engine.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := collector.Run{
		ID:        runID,
		Query:     query,
		Status:    collector.RunStatusDone,
		Submitted: time.Now().UTC(),
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return engine.Result{}, err
	}
	if err := c.store.RecordPage(ctx, runID, collector.Page{URL: "https://acme.com/", Rank: 1}); err != nil {
		return engine.Result{}, err
	}
	c.started <- runID
	return engine.Result{Run: run}, nil
}

func newTestServer(t *testing.T) (*Server, *storemem.Store, *fakeCollector) {
	t.Helper()
	store := storemem.New()
	fc := newFakeCollector(store)
	return NewServer(fc, store, zap.NewNop()), store, fc
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSubmitRunAndFetchResults(t *testing.T) {
	srv, store, fc := newTestServer(t)

	body := bytes.NewBufferString(`{"query":"acme shoes"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	runID := resp["run_id"]
	require.NotEmpty(t, runID)

	select {
	case started := <-fc.started:
		require.Equal(t, runID, started)
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not start")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run collector.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, "acme shoes", run.Query)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+runID+"/pages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://acme.com/")

	_, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
}

func TestSubmitRunRequiresQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/missing/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
