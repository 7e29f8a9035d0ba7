package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, g prometheus.Gatherer) string {
	t.Helper()

	rec := httptest.NewRecorder()
	Handler(g).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}

	return string(body)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.UtteranceStarted("stream")
	m.SegmentSpoken()
	m.Interrupted()
	m.PipelineError("decode")
	m.AddMouthFrames(3)
	m.ObserveSynthesis(time.Second)
	m.SetSpeaking(true)
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("lipsync", reg)

	m.UtteranceStarted("file")
	m.UtteranceStarted("file")
	m.UtteranceStarted("stream")
	m.PipelineError("playback")
	m.AddMouthFrames(5)
	m.AddMouthFrames(0)
	m.Interrupted()
	m.SetSpeaking(true)

	out := scrape(t, reg)
	for _, want := range []string{
		`lipsync_utterances_total{path="file"} 2`,
		`lipsync_utterances_total{path="stream"} 1`,
		`lipsync_pipeline_errors_total{stage="playback"} 1`,
		`lipsync_mouth_frames_total 5`,
		`lipsync_interruptions_total 1`,
		`lipsync_speaking 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q:\n%s", want, out)
		}
	}

	m.SetSpeaking(false)
	if out := scrape(t, reg); !strings.Contains(out, "lipsync_speaking 0") {
		t.Errorf("speaking gauge not reset:\n%s", out)
	}
}
