package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments of the lip-sync pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Utterances       *prometheus.CounterVec
	Segments         prometheus.Counter
	Interruptions    prometheus.Counter
	PipelineErrors   *prometheus.CounterVec
	MouthFrames      prometheus.Counter
	SynthesisLatency prometheus.Histogram
	Speaking         prometheus.Gauge
}

// NewMetrics registers the instruments on reg. A nil reg uses the default
// registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances spoken by delivery path.",
		}, []string{"path"}),
		Segments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments that produced audio.",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-in stop requests that interrupted speech.",
		}),
		PipelineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Contained pipeline failures by stage.",
		}, []string{"stage"}),
		MouthFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mouth_frames_total",
			Help:      "Mouth values pushed to the renderer.",
		}),
		SynthesisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_latency_ms",
			Help:      "Time to synthesize one segment to a file, or to open its stream, in milliseconds.",
			Buckets:   []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000},
		}),
		Speaking: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speaking",
			Help:      "1 while audio is playing.",
		}),
	}
}

func (m *Metrics) UtteranceStarted(path string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(path).Inc()
}

func (m *Metrics) SegmentSpoken() {
	if m == nil {
		return
	}
	m.Segments.Inc()
}

func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

func (m *Metrics) PipelineError(stage string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) AddMouthFrames(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MouthFrames.Add(float64(n))
}

func (m *Metrics) ObserveSynthesis(d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisLatency.Observe(float64(d.Milliseconds()))
}

// SetSpeaking is shaped for use as a playback start/stop hook.
func (m *Metrics) SetSpeaking(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Speaking.Set(1)
		return
	}
	m.Speaking.Set(0)
}

// Handler serves g in the Prometheus exposition format. A nil g serves the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
