package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/quality"
	"github.com/reachlab/reach-data/internal/scheduler"
	"github.com/reachlab/reach-data/internal/store"
)

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fakeBatch struct {
	lastScope string
	lastMax   int
	err       error
}

func (f *fakeBatch) RunBatch(_ context.Context, scope string, maxTickers int) (*model.RunSummary, error) {
	f.lastScope = scope
	f.lastMax = maxTickers
	if f.err != nil {
		return nil, f.err
	}
	return &model.RunSummary{RunID: uuid.New(), Scope: scope}, nil
}

type fakeQuality struct{}

func (f *fakeQuality) Run(context.Context) (*quality.Report, error) {
	return &quality.Report{
		GeneratedAt: time.Now().UTC(),
		Coverage:    store.CoverageCounts{ActiveSecurities: 10, WithRatios: 8},
		Score:       90,
		Grade:       "A",
	}, nil
}

func testServer(pingErr error) (*Server, *fakeBatch) {
	registry := scheduler.NewRegistry()
	registry.Add(scheduler.NewScopeScheduler("korea", scheduler.RunnerFunc(
		func(ctx context.Context) (*model.RunSummary, error) {
			return &model.RunSummary{RunID: uuid.New(), Scope: "korea"}, nil
		}), nil))

	batch := &fakeBatch{}
	s := New(0, &fakePinger{err: pingErr}, registry, batch, &fakeQuality{}, nil)
	return s, batch
}

func TestHandleHealth(t *testing.T) {
	s, _ := testServer(nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %s", body.Status)
	}
	if body.Components["postgres"] != "connected" {
		t.Errorf("postgres = %v", body.Components["postgres"])
	}
}

func TestHandleHealth_DBDown(t *testing.T) {
	s, _ := testServer(errors.New("connection refused"))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleSchedulerStatus(t *testing.T) {
	s, _ := testServer(nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Scopes []scheduler.Status `json:"scopes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Scopes) != 1 || body.Scopes[0].Scope != "korea" {
		t.Errorf("scopes = %+v", body.Scopes)
	}
}

func TestHandleSchedulerStartStopRunNow(t *testing.T) {
	s, _ := testServer(nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/start?scope=korea&cron=0+18+*+*+MON-FRI", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/run-now?scope=korea", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run-now status = %d: %s", rec.Code, rec.Body)
	}
	var summary model.RunSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Scope != "korea" {
		t.Errorf("summary.Scope = %s", summary.Scope)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/stop?scope=korea", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}

	// Unknown scope 404s.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/run-now?scope=mars", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown scope status = %d, want 404", rec.Code)
	}

	// GET on a control endpoint is rejected.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/run-now?scope=korea", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET run-now status = %d, want 405", rec.Code)
	}
}

func TestHandleBatchRun(t *testing.T) {
	s, batch := testServer(nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batch/run?scope=us&max_tickers=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if batch.lastScope != "us" || batch.lastMax != 5 {
		t.Errorf("batch called with %s/%d, want us/5", batch.lastScope, batch.lastMax)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batch/run?scope=us&max_tickers=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative max_tickers status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batch/run", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing scope status = %d, want 400", rec.Code)
	}
}

func TestHandleBatchRun_Conflict(t *testing.T) {
	s, batch := testServer(nil)
	batch.err = scheduler.ErrAlreadyRunning

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/batch/run?scope=korea", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 while a run is in flight", rec.Code)
	}
}

func TestHandleQualityReport(t *testing.T) {
	s, _ := testServer(nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quality/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var report quality.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Grade != "A" || report.Score != 90 {
		t.Errorf("report = %+v", report)
	}
}
