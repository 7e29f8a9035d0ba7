package renderer

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/go-lipsync/internal/config"
)

func TestNew(t *testing.T) {
	hub := NewScriptHub(nil)
	tests := []struct {
		name    string
		kind    string
		hub     *ScriptHub
		want    string
		wantErr bool
	}{
		{name: "empty is stdout", kind: "", want: "*renderer.Writer"},
		{name: "http", kind: "http", want: "*renderer.Remote"},
		{name: "remote alias", kind: "remote", want: "*renderer.Remote"},
		{name: "websocket", kind: "ws", hub: hub, want: "*renderer.Script"},
		{name: "websocket without hub", kind: "websocket", wantErr: true},
		{name: "unknown", kind: "opengl", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig().Renderer
			cfg.Kind = tc.kind

			r, err := New(cfg, io.Discard, tc.hub)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("New(%q) succeeded; want error", tc.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q): %v", tc.kind, err)
			}
			if got := typeName(r); got != tc.want {
				t.Fatalf("New(%q) = %s; want %s", tc.kind, got, tc.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *Writer:
		return "*renderer.Writer"
	case *Remote:
		return "*renderer.Remote"
	case *Script:
		return "*renderer.Script"
	default:
		return "unknown"
	}
}

func TestNew_WebSocketWithoutHub(t *testing.T) {
	_, err := New(config.RendererConfig{Kind: "websocket"}, io.Discard, nil)
	if !errors.Is(err, ErrNoHub) {
		t.Fatalf("err = %v; want ErrNoHub", err)
	}
}

func TestWriter_EmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, []string{"happy"}, []string{"wave"})

	_ = w.SetExpression("happy")
	_ = w.SetMouth(0.25)
	_ = w.SetMouth(2)
	_ = w.DoMotion("wave")
	_ = w.SetMouth(0)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		`{"type":"expression","name":"happy"}`,
		`{"type":"mouth","value":0.25}`,
		`{"type":"mouth","value":1}`,
		`{"type":"motion","name":"wave"}`,
		`{"type":"mouth","value":0}`,
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q; want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %s; want %s", i, lines[i], want[i])
		}
	}

	if got := w.Expressions(); len(got) != 1 || got[0] != "happy" {
		t.Errorf("Expressions = %v", got)
	}
	if got := w.Motions(); len(got) != 1 || got[0] != "wave" {
		t.Errorf("Motions = %v", got)
	}
}

// puppet is a minimal remote puppet that records requests.
type puppet struct {
	mu       sync.Mutex
	requests []string
	fetches  int
	status   int
}

func (p *puppet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != 0 {
		w.WriteHeader(p.status)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/expressions":
		p.fetches++
		_ = json.NewEncoder(w).Encode([]string{"happy", "sad"})
	case r.Method == http.MethodGet && r.URL.Path == "/motions":
		p.fetches++
		_ = json.NewEncoder(w).Encode([]string{"nod"})
	case r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		p.requests = append(p.requests, r.URL.Path+" "+strings.TrimSpace(string(body)))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestRemote_PostsCommands(t *testing.T) {
	p := &puppet{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	r := NewRemote(srv.URL+"/", time.Second)
	if err := r.SetMouth(0.5); err != nil {
		t.Fatalf("SetMouth: %v", err)
	}
	if err := r.SetExpression("happy"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	if err := r.DoMotion("nod"); err != nil {
		t.Fatalf("DoMotion: %v", err)
	}

	want := []string{
		`/mouth {"amplitude":0.5}`,
		`/expression {"expression":"happy"}`,
		`/motion {"motion":"nod"}`,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) != len(want) {
		t.Fatalf("requests = %q; want %q", p.requests, want)
	}
	for i := range want {
		if p.requests[i] != want[i] {
			t.Errorf("request %d = %s; want %s", i, p.requests[i], want[i])
		}
	}
}

func TestRemote_FetchesAndCachesLabels(t *testing.T) {
	p := &puppet{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	r := NewRemote(srv.URL, time.Second)
	for range 3 {
		if got := r.Expressions(); len(got) != 2 || got[0] != "happy" {
			t.Fatalf("Expressions = %v", got)
		}
		if got := r.Motions(); len(got) != 1 || got[0] != "nod" {
			t.Fatalf("Motions = %v", got)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetches != 2 {
		t.Fatalf("fetches = %d; want 2 (one per list)", p.fetches)
	}
}

func TestRemote_ConfiguredLabelsSkipFetch(t *testing.T) {
	p := &puppet{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	r := NewRemote(srv.URL, time.Second, WithLabels([]string{"smug"}, nil))
	if got := r.Expressions(); len(got) != 1 || got[0] != "smug" {
		t.Fatalf("Expressions = %v; want [smug]", got)
	}
	_ = r.Motions()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetches != 1 {
		t.Fatalf("fetches = %d; want 1 (motions only)", p.fetches)
	}
}

func TestRemote_Errors(t *testing.T) {
	p := &puppet{status: http.StatusInternalServerError}
	srv := httptest.NewServer(p)
	defer srv.Close()

	r := NewRemote(srv.URL, time.Second)
	if err := r.SetMouth(0.1); err == nil {
		t.Fatal("SetMouth succeeded against failing puppet")
	}
	if got := r.Expressions(); got != nil {
		t.Fatalf("Expressions = %v; want nil on failure", got)
	}

	// Failures are not cached.
	p.mu.Lock()
	p.status = 0
	p.mu.Unlock()
	if got := r.Expressions(); len(got) != 2 {
		t.Fatalf("Expressions after recovery = %v", got)
	}

	down := NewRemote("http://127.0.0.1:1", 200*time.Millisecond)
	if err := down.SetExpression("x"); err == nil {
		t.Fatal("SetExpression succeeded against closed port")
	}
}

func TestRemote_DefaultTimeoutBoundsStalledPuppet(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewRemote(srv.URL, 0)
	start := time.Now()
	if err := r.SetMouth(0.3); err == nil {
		t.Fatal("SetMouth succeeded against stalled puppet")
	}
	if elapsed := time.Since(start); elapsed > 2*defaultRemoteTimeout {
		t.Fatalf("SetMouth took %v; want about %v", elapsed, defaultRemoteTimeout)
	}
	if defaultRemoteTimeout > 500*time.Millisecond {
		t.Fatalf("defaultRemoteTimeout = %v; frame commands must fail fast", defaultRemoteTimeout)
	}
}

type recordingEvaluator struct {
	scripts []string
}

func (r *recordingEvaluator) Eval(s string) error {
	r.scripts = append(r.scripts, s)
	return nil
}

func TestScript_Commands(t *testing.T) {
	ev := &recordingEvaluator{}
	s := NewScript(ev, []string{"happy"}, nil)

	_ = s.SetMouth(0.5)
	_ = s.SetMouth(-3)
	_ = s.SetExpression("happy")
	_ = s.DoMotion(`say "hi"`)

	want := []string{
		"set_mouth_y(0.5000)",
		"set_mouth_y(0.0000)",
		`set_expression("happy")`,
		`do_motion("say \"hi\"")`,
	}
	if len(ev.scripts) != len(want) {
		t.Fatalf("scripts = %q; want %q", ev.scripts, want)
	}
	for i := range want {
		if ev.scripts[i] != want[i] {
			t.Errorf("script %d = %s; want %s", i, ev.scripts[i], want[i])
		}
	}
}

func waitViewers(t *testing.T, hub *ScriptHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Viewers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d; want %d", hub.Viewers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScriptHub_BroadcastsToViewers(t *testing.T) {
	hub := NewScriptHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	waitViewers(t, hub, 2)

	s := NewScript(hub, nil, nil)
	if err := s.SetMouth(0.25); err != nil {
		t.Fatalf("SetMouth: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("viewer %s read: %v", name, err)
		}
		if typ != websocket.TextMessage || string(msg) != "set_mouth_y(0.2500)" {
			t.Fatalf("viewer %s got %d %q", name, typ, msg)
		}
	}

	_ = b.Close()
	waitViewers(t, hub, 1)

	hub.Close()
	waitViewers(t, hub, 0)
}

func TestScriptHub_EvalWithoutViewers(t *testing.T) {
	hub := NewScriptHub(nil)
	if err := hub.Eval("set_mouth_y(0)"); err != nil {
		t.Fatalf("Eval with no viewers: %v", err)
	}
}
