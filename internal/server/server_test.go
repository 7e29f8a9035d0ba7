package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/go-lipsync/internal/observability"
	"github.com/example/go-lipsync/internal/server"
)

// stubSpeaker implements server.Speaker for tests.
type stubSpeaker struct {
	err    error
	block  bool
	active atomic.Bool
	stops  atomic.Int32

	mu    sync.Mutex
	texts []string
}

func (s *stubSpeaker) SpeakText(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.block {
		s.active.Store(true)
		defer s.active.Store(false)
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *stubSpeaker) Stop()        { s.stops.Add(1) }
func (s *stubSpeaker) Active() bool { return s.active.Load() }

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := server.NewHandler(&stubSpeaker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec.Body)
	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %v", body["status"])
	}
	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
	if body["speaking"] != false {
		t.Errorf("want speaking=false, got %v", body["speaking"])
	}
}

// ---------------------------------------------------------------------------
// POST /speak
// ---------------------------------------------------------------------------

func TestSpeak_Success(t *testing.T) {
	sp := &stubSpeaker{}
	h := server.NewHandler(sp)

	rec := postJSON(h, "/speak", `{"text":"(happy) Hello there."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec.Body); body["status"] != "done" {
		t.Errorf("status = %v; want done", body["status"])
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.texts) != 1 || sp.texts[0] != "(happy) Hello there." {
		t.Fatalf("speaker got %q", sp.texts)
	}
}

func TestSpeak_Validation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "invalid json", method: http.MethodPost, body: `{"text":`, want: http.StatusBadRequest},
		{name: "empty text", method: http.MethodPost, body: `{"text":""}`, want: http.StatusBadRequest},
		{name: "blank text", method: http.MethodPost, body: `{"text":"   "}`, want: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sp := &stubSpeaker{}
			h := server.NewHandler(sp)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/speak", strings.NewReader(tc.body))
			h.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("want %d, got %d", tc.want, rec.Code)
			}
			if body := decodeBody(t, rec.Body); body["error"] == "" {
				t.Error("want non-empty error field")
			}
			if len(sp.texts) != 0 {
				t.Fatalf("speaker called for invalid request: %q", sp.texts)
			}
		})
	}
}

func TestSpeak_OversizedTextRejectedAs413(t *testing.T) {
	h := server.NewHandler(&stubSpeaker{}, server.WithMaxTextBytes(10))

	rec := postJSON(h, "/speak", `{"text":"`+strings.Repeat("x", 11)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}

	rec = postJSON(h, "/speak", `{"text":"`+strings.Repeat("x", 10)+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 for exactly-limit text, got %d", rec.Code)
	}
}

func TestSpeak_TimeoutReturns504(t *testing.T) {
	h := server.NewHandler(&stubSpeaker{block: true}, server.WithRequestTimeout(20*time.Millisecond))

	rec := postJSON(h, "/speak", `{"text":"Hello."}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("want 504, got %d", rec.Code)
	}
}

func TestSpeak_SpeakerErrorReturns500(t *testing.T) {
	h := server.NewHandler(&stubSpeaker{err: errors.New("renderer offline")})

	rec := postJSON(h, "/speak", `{"text":"Hello."}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
	if body := decodeBody(t, rec.Body); body["error"] != "renderer offline" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSpeak_RejectsImmediatelyWhenPendingFull(t *testing.T) {
	sp := &stubSpeaker{block: true}
	h := server.NewHandler(sp, server.WithMaxPending(1), server.WithRequestTimeout(time.Second))

	first := make(chan int, 1)
	go func() { first <- postJSON(h, "/speak", `{"text":"one"}`).Code }()

	deadline := time.Now().Add(time.Second)
	for !sp.Active() {
		if time.Now().After(deadline) {
			t.Fatal("first request never started speaking")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The second request carries no deadline of its own; it must be
	// answered without waiting for the first one.
	start := time.Now()
	rec := postJSON(h, "/speak", `{"text":"two"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("second request: want 503, got %d", rec.Code)
	}
	if waited := time.Since(start); waited > 200*time.Millisecond {
		t.Fatalf("second request waited %v; want an immediate rejection", waited)
	}

	sp.mu.Lock()
	texts := append([]string(nil), sp.texts...)
	sp.mu.Unlock()
	if len(texts) != 1 || texts[0] != "one" {
		t.Fatalf("speaker got %q; rejected text must not reach it", texts)
	}

	if code := <-first; code != http.StatusGatewayTimeout {
		t.Fatalf("first request: want 504, got %d", code)
	}

	// The slot is released once the first request finishes.
	sp.block = false
	if rec := postJSON(h, "/speak", `{"text":"three"}`); rec.Code != http.StatusOK {
		t.Fatalf("request after release: want 200, got %d", rec.Code)
	}
}

func TestSpeak_ClientDisconnectIsNotATimeout(t *testing.T) {
	sp := &stubSpeaker{block: true}
	h := server.NewHandler(sp, server.WithRequestTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !sp.Active() {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(`{"text":"bye"}`)).WithContext(ctx)
	h.ServeHTTP(rec, req)

	if rec.Code == http.StatusGatewayTimeout {
		t.Fatal("client disconnect reported as 504 timeout")
	}
	if rec.Code != 499 {
		t.Fatalf("want 499 client closed request, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /stop
// ---------------------------------------------------------------------------

func TestStop_InterruptsSpeaker(t *testing.T) {
	sp := &stubSpeaker{}
	h := server.NewHandler(sp)

	rec := postJSON(h, "/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if sp.stops.Load() != 1 {
		t.Fatalf("stops = %d; want 1", sp.stops.Load())
	}
	body := decodeBody(t, rec.Body)
	if body["status"] != "stopped" || body["was_speaking"] != false {
		t.Fatalf("body = %v", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stop", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /stop: want 405, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Optional routes
// ---------------------------------------------------------------------------

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("lipsync", reg)
	m.Interrupted()

	h := server.NewHandler(&stubSpeaker{}, server.WithMetrics(reg))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lipsync_interruptions_total 1") {
		t.Fatalf("metrics output missing interruption counter:\n%s", rec.Body.String())
	}

	bare := server.NewHandler(&stubSpeaker{})
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("/metrics without gatherer: want 404, got %d", rec.Code)
	}
}

func TestScriptHubRoute(t *testing.T) {
	var hit atomic.Bool
	hub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit.Store(true)
		w.WriteHeader(http.StatusTeapot)
	})

	h := server.NewHandler(&stubSpeaker{}, server.WithScriptHub(hub))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if !hit.Load() || rec.Code != http.StatusTeapot {
		t.Fatalf("/ws not routed to hub (code %d)", rec.Code)
	}
}
