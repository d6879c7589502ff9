package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftmeeet/CAS/internal/auth"
	"github.com/ftmeeet/CAS/internal/conjunction"
	"github.com/ftmeeet/CAS/internal/job"
	"github.com/ftmeeet/CAS/internal/results"
	"github.com/ftmeeet/CAS/internal/screening"
	"github.com/ftmeeet/CAS/internal/tle"
)

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// blockingRunner yields at cancellation like the real pipeline does at
// pair boundaries.
func blockingRunner(ctx context.Context, rep job.ProgressReporter) (*screening.Report, error) {
	<-ctx.Done()
	return &screening.Report{Incomplete: true, Stats: screening.Stats{Filtered: map[string]int{}}}, nil
}

func newTestServer(t *testing.T, authCfg auth.Config) (*Server, Dependencies) {
	t.Helper()
	logger := testLogger()

	resStore, err := results.Open(filepath.Join(t.TempDir(), "results.db"), logger)
	require.NoError(t, err)

	deps := Dependencies{
		Controller: job.NewController(blockingRunner, time.Second, logger),
		Results:    resStore,
		Catalog:    tle.NewStore(),
		Auth:       authCfg,
	}
	return NewServer("127.0.0.1:0", logger, deps), deps
}

func doRequest(s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	s, deps := newTestServer(t, auth.Config{})

	assert.Equal(t, http.StatusOK, doRequest(s, "GET", "/healthz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(s, "GET", "/readyz", nil).Code)

	deps.Catalog.Set(&tle.TLEDataset{Source: "test", FetchedAt: time.Now()})
	assert.Equal(t, http.StatusOK, doRequest(s, "GET", "/readyz", nil).Code)
}

func TestAnalysisLifecycle(t *testing.T) {
	s, deps := newTestServer(t, auth.Config{})

	// No job yet: stop conflicts, status reads idle.
	assert.Equal(t, http.StatusConflict, doRequest(s, "POST", "/api/v1/analysis/stop", nil).Code)
	st := decode(t, doRequest(s, "GET", "/api/v1/analysis/status", nil))
	assert.Equal(t, "Idle", st["state"])

	assert.Equal(t, http.StatusAccepted, doRequest(s, "POST", "/api/v1/analysis/start", nil).Code)
	assert.Equal(t, http.StatusConflict, doRequest(s, "POST", "/api/v1/analysis/start", nil).Code)

	st = decode(t, doRequest(s, "GET", "/api/v1/analysis/status", nil))
	assert.Equal(t, true, st["is_running"])

	assert.Equal(t, http.StatusAccepted, doRequest(s, "POST", "/api/v1/analysis/stop", nil).Code)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if deps.Controller.Status().State == job.StateStopped {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	st = decode(t, doRequest(s, "GET", "/api/v1/analysis/status", nil))
	assert.Equal(t, "Stopped", st["state"])
	assert.Equal(t, float64(0), st["progress"])
}

func TestResultsEmptyPayload(t *testing.T) {
	s, _ := newTestServer(t, auth.Config{})

	w := doRequest(s, "GET", "/api/v1/analysis/results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "", body["run_id"])
	report := body["report"].(map[string]any)
	assert.Empty(t, report["events"])
}

func TestResultsAfterRun(t *testing.T) {
	s, deps := newTestServer(t, auth.Config{})

	tca := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	vel := 9.5
	_, err := deps.Results.SaveRun(context.Background(), &screening.Report{
		StartedAt:  tca.Add(-time.Hour),
		FinishedAt: tca,
		Events: []screening.Event{{
			Satellite1:           "SAT-A",
			Satellite2:           "SAT-B",
			Prediction:           1,
			DistanceKM:           4.2,
			CollisionProbability: 0.8,
			RiskLevel:            conjunction.RiskHigh,
			ConjunctionTime:      &tca,
			RelativeVelocityKMS:  &vel,
		}},
		Stats: screening.Stats{TotalPairs: 1, Successful: 1, Conjunctions: 1,
			Filtered: map[string]int{}},
	})
	require.NoError(t, err)

	body := decode(t, doRequest(s, "GET", "/api/v1/analysis/results", nil))
	assert.NotEmpty(t, body["run_id"])
	report := body["report"].(map[string]any)
	events := report["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "SAT-A", events[0].(map[string]any)["satellite1"])

	// CSV rendering of the same run.
	w := doRequest(s, "GET", "/api/v1/analysis/results?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "SAT-A,SAT-B,1,4.200000")
}

func TestUploadTargets(t *testing.T) {
	s, deps := newTestServer(t, auth.Config{})

	body := strings.NewReader(issName + "\n" + issLine1 + "\n" + issLine2 + "\n")
	w := doRequest(s, "POST", "/api/v1/targets", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["targets"])

	targets := deps.Catalog.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, 25544, targets[0].NORADID)

	w = doRequest(s, "POST", "/api/v1/targets", strings.NewReader("not a tle\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSatelliteEndpoints(t *testing.T) {
	s, deps := newTestServer(t, auth.Config{})

	deps.Catalog.Set(&tle.TLEDataset{
		Source:    "test",
		FetchedAt: time.Now(),
		Satellites: []tle.TLEEntry{
			{NORADID: 25544, Name: issName, Line1: issLine1, Line2: issLine2},
			{NORADID: 44713, Name: "STARLINK-1007"},
		},
	})

	body := decode(t, doRequest(s, "GET", "/api/v1/satellites?limit=1", nil))
	assert.Equal(t, float64(2), body["count"])
	assert.Len(t, body["satellites"].([]any), 1)

	// An absurd limit is capped to the catalog, not allocated.
	w := doRequest(s, "GET", "/api/v1/satellites?limit=999999999999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["satellites"].([]any), 2)

	w = doRequest(s, "GET", "/api/v1/satellites/25544", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(25544), decode(t, w)["norad_id"])

	assert.Equal(t, http.StatusNotFound, doRequest(s, "GET", "/api/v1/satellites/1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(s, "GET", "/api/v1/satellites/abc", nil).Code)
}

func TestAuthProtectsAPI(t *testing.T) {
	s, _ := newTestServer(t, auth.Config{Enabled: true, Token: "secret"})

	// Probes stay public.
	assert.Equal(t, http.StatusOK, doRequest(s, "GET", "/healthz", nil).Code)

	assert.Equal(t, http.StatusUnauthorized, doRequest(s, "GET", "/api/v1/analysis/status", nil).Code)

	req := httptest.NewRequest("GET", "/api/v1/analysis/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
