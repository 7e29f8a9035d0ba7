package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/go-lipsync/internal/config"
	"github.com/example/go-lipsync/internal/observability"
	"github.com/example/go-lipsync/internal/text"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was written.
const statusClientClosedRequest = 499

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Speaker speaks annotated text on the avatar. SpeakText blocks until the
// utterance finishes or is stopped.
type Speaker interface {
	SpeakText(ctx context.Context, text string) error
	Stop()
	Active() bool
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxPending     int
	requestTimeout time.Duration
	logger         *slog.Logger
	gatherer       prometheus.Gatherer
	scripts        http.Handler
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		maxPending:     8,
		requestTimeout: 120 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /speak.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxPending bounds how many /speak requests may be admitted at once,
// including those waiting for the avatar. Requests beyond the bound are
// rejected with 503 right away. Zero disables the bound.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithRequestTimeout sets the per-request speech deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics serves g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// WithScriptHub mounts a websocket viewer endpoint on /ws.
func WithScriptHub(h http.Handler) Option {
	return func(o *options) { o.scripts = h }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	speaker Speaker
	opts    options
	sem     chan struct{}
	log     *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, POST /speak and
// POST /stop, plus /metrics and /ws when configured.
func NewHandler(speaker Speaker, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	h := &handler{
		speaker: speaker,
		opts:    opts,
		log:     opts.logger,
	}
	if opts.maxPending > 0 {
		h.sem = make(chan struct{}, opts.maxPending)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/speak", h.handleSpeak)
	mux.HandleFunc("/stop", h.handleStop)
	if opts.gatherer != nil {
		mux.Handle("/metrics", observability.Handler(opts.gatherer))
	}
	if opts.scripts != nil {
		mux.Handle("/ws", opts.scripts)
	}
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Speaking bool   `json:"speaking"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  buildVersion(),
		Speaking: h.speaker.Active(),
	})
}

type speakRequest struct {
	Text string `json:"text"`
}

func (h *handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	input, err := text.Normalize(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(input) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		default:
			writeError(w, http.StatusServiceUnavailable,
				fmt.Sprintf("avatar busy: %d requests already pending", cap(h.sem)))
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	err = h.speaker.SpeakText(ctx, input)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.log.WarnContext(r.Context(), "speech timed out",
				slog.Int("text_len", len(input)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "speech timed out")
			return
		}
		if errors.Is(err, context.Canceled) {
			h.log.InfoContext(r.Context(), "client disconnected",
				slog.Int("text_len", len(input)),
				slog.Int64("duration_ms", durationMS),
			)
			writeError(w, statusClientClosedRequest, "client closed request")
			return
		}
		h.log.ErrorContext(r.Context(), "speech failed",
			slog.Int("text_len", len(input)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "speech complete",
		slog.Int("text_len", len(input)),
		slog.Int64("duration_ms", durationMS),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "done",
		"duration_ms": durationMS,
	})
}

func (h *handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	wasSpeaking := h.speaker.Active()
	h.speaker.Stop()
	h.log.InfoContext(r.Context(), "stop requested", slog.Bool("was_speaking", wasSpeaking))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "stopped",
		"was_speaking": wasSpeaking,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	speaker         Speaker
	extra           []Option
	shutdownTimeout time.Duration
}

// New returns a Server for speaker. Options are applied after the ones
// derived from cfg.
func New(cfg config.Config, speaker Speaker, optFns ...Option) *Server {
	return &Server{
		cfg:             cfg,
		speaker:         speaker,
		extra:           optFns,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) handlerOptions() []Option {
	opts := []Option{
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithMaxPending(s.cfg.Server.MaxPending),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
	}
	return append(opts, s.extra...)
}

// Start serves until ctx is done. On shutdown the current utterance is
// stopped so in-flight /speak requests can drain.
func (s *Server) Start(ctx context.Context) error {
	if s.speaker == nil {
		return errors.New("server requires a speaker")
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           NewHandler(s.speaker, s.handlerOptions()...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.speaker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
