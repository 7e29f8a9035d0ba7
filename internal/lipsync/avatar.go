package lipsync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-lipsync/internal/media"
	"github.com/example/go-lipsync/internal/observability"
	"github.com/example/go-lipsync/internal/text"
)

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	fps             int
	logger          *slog.Logger
	metrics         *observability.Metrics
	lock            *media.PlaybackLock
	tempDir         string
	synthWorkers    int
	chunkSize       int
	maxSegmentChars int
}

func defaultOptions() options {
	return options{
		fps:          10,
		logger:       slog.Default(),
		synthWorkers: 2,
		chunkSize:    DefaultChunkSize,
	}
}

// Option configures an Avatar.
type Option func(*options)

// WithFrameRate sets the mouth animation rate in frames per second.
func WithFrameRate(fps int) Option {
	return func(o *options) {
		if fps > 0 {
			o.fps = fps
		}
	}
}

// WithLogger sets the slog.Logger used for pipeline diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records pipeline activity on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPlaybackLock serializes this avatar's utterances with others sharing l.
// The lock is held for a whole utterance while the Player takes its own
// lock per segment, so l must not be the lock given to the Player with
// media.WithLock: sharing one instance deadlocks on the first segment.
func WithPlaybackLock(l *media.PlaybackLock) Option {
	return func(o *options) { o.lock = l }
}

// WithTempDir sets where file-based backends write segment audio.
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// WithSynthWorkers bounds concurrent file-based synthesis per utterance.
func WithSynthWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.synthWorkers = n
		}
	}
}

// WithChunkSize sets the read size used when teeing streamed audio.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithMaxSegmentChars makes SpeakText split long segments at sentence
// boundaries. Zero disables splitting.
func WithMaxSegmentChars(n int) Option {
	return func(o *options) { o.maxSegmentChars = n }
}

// ---------------------------------------------------------------------------
// Avatar
// ---------------------------------------------------------------------------

// Avatar coordinates speech playback and mouth animation for one renderer.
// Utterances are serialized by a playback lock; Stop interrupts the current
// utterance and any waiting for the lock.
type Avatar struct {
	renderer Renderer
	player   Player
	decoder  PCMDecoder
	opts     options
	log      *slog.Logger
	metrics  *observability.Metrics
	driver   *Driver
	stop     *StopSignal
	lock     *media.PlaybackLock
	active   atomic.Int32
}

func New(renderer Renderer, player Player, decoder PCMDecoder, optFns ...Option) *Avatar {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.lock == nil {
		opts.lock = media.NewPlaybackLock()
	}
	if opts.tempDir == "" {
		opts.tempDir = os.TempDir()
	}

	return &Avatar{
		renderer: renderer,
		player:   player,
		decoder:  decoder,
		opts:     opts,
		log:      opts.logger,
		metrics:  opts.metrics,
		driver:   NewDriver(renderer, opts.fps, opts.logger),
		stop:     NewStopSignal(),
		lock:     opts.lock,
	}
}

// Renderer returns the avatar's sink.
func (a *Avatar) Renderer() Renderer { return a.renderer }

// Active reports whether an utterance is speaking or waiting to speak.
func (a *Avatar) Active() bool { return a.active.Load() > 0 }

// Stop interrupts the current utterance. Calling it repeatedly is the same
// as calling it once.
func (a *Avatar) Stop() {
	if a.stop.Stop() && a.Active() {
		a.metrics.Interrupted()
		a.log.Info("stop requested")
	}
}

// SpeakText splits annotated text into segments using the renderer's
// expression and motion labels, then speaks them.
func (a *Avatar) SpeakText(ctx context.Context, input string, tts TTS, tr Translator) error {
	labels := append(append([]string(nil), a.renderer.Expressions()...), a.renderer.Motions()...)
	segs := text.SplitLongSegments(text.ExtractSegments(input, labels), a.opts.maxSegmentChars)

	return a.Speak(ctx, segs, tts, tr)
}

// Speak plays segs in order. Pipeline faults are logged and degrade to
// silence; interruption by Stop returns nil. Only cancellation of ctx is
// reported, as ctx.Err().
func (a *Avatar) Speak(ctx context.Context, segs []Segment, tts TTS, tr Translator) error {
	if len(segs) == 0 {
		return ctx.Err()
	}

	a.active.Add(1)
	defer a.active.Add(-1)

	uctx, cancel := a.stop.Context(ctx)
	defer cancel()

	u := a.newUtterance(len(segs))
	start := time.Now()

	if s, ok := tts.(Streamer); ok && tts.StreamingEnabled() {
		u.log.Info("utterance started", slog.String("path", "stream"), slog.Int("segments", len(segs)))
		a.metrics.UtteranceStarted("stream")
		a.speakStreaming(uctx, u, segs, s, tr)
	} else {
		u.log.Info("utterance started", slog.String("path", "file"), slog.Int("segments", len(segs)))
		a.metrics.UtteranceStarted("file")
		a.speakFiles(uctx, u, segs, tts, tr)
	}

	u.log.Info("utterance finished",
		slog.Bool("interrupted", errors.Is(context.Cause(uctx), ErrInterrupted)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return ctx.Err()
}

// utterance carries per-call state: identity and a snapshot of the
// renderer's labels.
type utterance struct {
	log         *slog.Logger
	expressions map[string]struct{}
	motions     map[string]struct{}
}

func (a *Avatar) newUtterance(n int) *utterance {
	return &utterance{
		log:         a.log.With(slog.String("utterance", uuid.NewString()), slog.Int("segments", n)),
		expressions: toSet(a.renderer.Expressions()),
		motions:     toSet(a.renderer.Motions()),
	}
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}

	return set
}

// applyTag fires an expression, else a motion. Unknown labels are ignored.
func (a *Avatar) applyTag(u *utterance, name string) {
	if name == "" {
		return
	}

	var err error
	if _, ok := u.expressions[name]; ok {
		err = a.renderer.SetExpression(name)
	} else if _, ok := u.motions[name]; ok {
		err = a.renderer.DoMotion(name)
	} else {
		u.log.Debug("ignoring unknown tag", slog.String("tag", name))
		return
	}
	if err != nil {
		a.fault(u, "renderer", err)
	}
}

func (a *Avatar) translate(ctx context.Context, u *utterance, tr Translator, s string) string {
	if tr == nil {
		return s
	}
	out, err := tr.Translate(ctx, s)
	if err != nil {
		u.log.Warn("translation failed, using source text", slog.Any("error", err))
		return s
	}
	if strings.TrimSpace(out) == "" {
		return s
	}

	return out
}

func (a *Avatar) fault(u *utterance, stage string, err error) {
	u.log.Warn("pipeline stage failed", slog.String("stage", stage), slog.Any("error", err))
	a.metrics.PipelineError(stage)
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
