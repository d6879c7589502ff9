package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ftmeeet/CAS/internal/job"
	"github.com/ftmeeet/CAS/internal/screening"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// idleController returns a controller that has never been started. Its
// runner blocks until cancelled so tests can observe the Running state.
func idleController(t *testing.T) *job.Controller {
	t.Helper()
	runner := func(ctx context.Context, rep job.ProgressReporter) (*screening.Report, error) {
		<-ctx.Done()
		return &screening.Report{Incomplete: true}, nil
	}
	return job.NewController(runner, time.Second, testLogger())
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		PollInterval:       5 * time.Millisecond,
	}
}

// decodeEvents parses the data lines out of a recorded SSE body.
func decodeEvents(t *testing.T, body string) []job.Status {
	t.Helper()
	var out []job.Status
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var st job.Status
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		out = append(out, st)
	}
	return out
}

// TestHandleStatusSendsInitialSnapshot verifies the current status is sent
// immediately on connect, before any transition happens.
func TestHandleStatusSendsInitialSnapshot(t *testing.T) {
	h := NewHandler(idleController(t), testConfig(), false, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	events := decodeEvents(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].State != job.StateIdle {
		t.Errorf("expected initial Idle snapshot, got %s", events[0].State)
	}
}

// TestHandleStatusSendsTransitions verifies a status change made while a
// client is connected is delivered as a new event.
func TestHandleStatusSendsTransitions(t *testing.T) {
	c := idleController(t)
	h := NewHandler(c, testConfig(), false, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.HandleStatus(rec, req)
	}()

	// Let the initial snapshot go out, then transition the job.
	time.Sleep(20 * time.Millisecond)
	if err := c.Start(); err != nil {
		t.Errorf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if err := c.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}

	events := decodeEvents(t, rec.Body.String())
	if len(events) < 2 {
		t.Fatalf("expected at least 2 events, got %d", len(events))
	}
	if events[0].State != job.StateIdle {
		t.Errorf("first event should be Idle, got %s", events[0].State)
	}
	sawRunning := false
	for _, ev := range events[1:] {
		if ev.State == job.StateRunning && ev.IsRunning {
			sawRunning = true
		}
	}
	if !sawRunning {
		t.Errorf("expected a Running event after start, got %+v", events)
	}
}

// TestHandleStatusLimitsPerIP verifies a second stream from the same IP is
// rejected with 429 when the per-IP limit is 1.
func TestHandleStatusLimitsPerIP(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	h := NewHandler(idleController(t), cfg, false, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/events", nil).WithContext(ctx)
	first.RemoteAddr = "10.0.0.1:1234"

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.HandleStatus(httptest.NewRecorder(), first)
	}()

	// Wait until the first connection holds its slot.
	deadline := time.Now().Add(2 * time.Second)
	for h.limiter.count("10.0.0.1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first stream never acquired its slot")
		}
		time.Sleep(time.Millisecond)
	}

	second := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/events", nil)
	second.RemoteAddr = "10.0.0.1:5678"
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, second)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}

	cancel()
	<-done
}

// plainWriter implements http.ResponseWriter without http.Flusher.
type plainWriter struct {
	header http.Header
	code   int
}

func (w *plainWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *plainWriter) Write(b []byte) (int, error) { return len(b), nil }

func (w *plainWriter) WriteHeader(code int) { w.code = code }

// TestHandleStatusRequiresFlusher verifies writers without flush support get
// a 500 instead of a hung connection.
func TestHandleStatusRequiresFlusher(t *testing.T) {
	h := NewHandler(idleController(t), testConfig(), false, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/events", nil)
	w := &plainWriter{}
	h.HandleStatus(w, req)

	if w.code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.code)
	}
}
