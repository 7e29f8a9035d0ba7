package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	pockettts "github.com/MeKo-Christian/go-call-pocket-tts"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/go-lipsync/internal/config"
	"github.com/example/go-lipsync/internal/lipsync"
	"github.com/example/go-lipsync/internal/media"
	"github.com/example/go-lipsync/internal/observability"
	"github.com/example/go-lipsync/internal/renderer"
	"github.com/example/go-lipsync/internal/tts"
)

const metricsNamespace = "lipsync"

// app is the wired pipeline shared by speak and serve.
type app struct {
	avatar   *lipsync.Avatar
	backend  tts.Backend
	hub      *renderer.ScriptHub
	registry *prometheus.Registry
}

// newApp wires renderer, TTS backend, media and metrics from cfg. out
// receives renderer output for the stdout kind.
func newApp(cfg config.Config, out io.Writer, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kind, err := config.NormalizeRenderer(cfg.Renderer.Kind)
	if err != nil {
		return nil, err
	}
	var hub *renderer.ScriptHub
	if kind == config.RendererWebSocket {
		hub = renderer.NewScriptHub(logger)
	}
	r, err := renderer.New(cfg.Renderer, out, hub)
	if err != nil {
		return nil, err
	}

	backend, err := tts.New(cfg.TTS, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(metricsNamespace, reg)

	mediaOpts := []media.Option{
		media.WithFFmpegPath(cfg.Media.FFmpegPath),
		media.WithFFplayPath(cfg.Media.FFplayPath),
		media.WithLogger(logger),
	}
	player := media.NewPlayer(mediaOpts...)
	player.Connect(media.EventStart, func() { metrics.SetSpeaking(true) })
	player.Connect(media.EventStop, func() { metrics.SetSpeaking(false) })

	avatar := lipsync.New(r, player, media.NewDecoder(mediaOpts...),
		lipsync.WithFrameRate(cfg.Lipsync.FPS),
		lipsync.WithLogger(logger),
		lipsync.WithMetrics(metrics),
		lipsync.WithTempDir(cfg.Lipsync.TempDir),
		lipsync.WithSynthWorkers(cfg.Lipsync.SynthWorkers),
		lipsync.WithMaxSegmentChars(cfg.Lipsync.MaxSegmentChars),
	)

	return &app{
		avatar:   avatar,
		backend:  backend,
		hub:      hub,
		registry: reg,
	}, nil
}

// SpeakText, Stop and Active make app a server.Speaker bound to its backend.
func (a *app) SpeakText(ctx context.Context, text string) error {
	return a.avatar.SpeakText(ctx, text, a.backend, nil)
}

func (a *app) Stop()        { a.avatar.Stop() }
func (a *app) Active() bool { return a.avatar.Active() }

// preflight verifies the binaries the configured pipeline needs.
func preflight(cfg config.Config, backend tts.Backend) error {
	if _, err := exec.LookPath(cfg.Media.FFplayPath); err != nil {
		return fmt.Errorf("ffplay: %w", err)
	}

	switch b := backend.(type) {
	case *tts.PocketTTS:
		if err := b.Preflight(); err != nil {
			return err
		}
	case *tts.Command:
		if _, err := exec.LookPath(cfg.TTS.Command); err != nil {
			return fmt.Errorf("tts command: %w", err)
		}
	}

	needsDecoder := cfg.TTS.Stream || (backend.FileFormat() != "" && backend.FileFormat() != "wav")
	if needsDecoder {
		if _, err := exec.LookPath(cfg.Media.FFmpegPath); err != nil {
			return fmt.Errorf("ffmpeg: %w", err)
		}
	}

	return nil
}

func mapSpeakError(err error) error {
	var notFound *pockettts.ErrExecutableNotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("speak failed: pocket-tts executable not found; set --tts-cli-path or LIPSYNC_TTS_CLI_PATH: %w", err)
	}

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("speak failed: required executable not found; check --media-ffplay-path, --media-ffmpeg-path and --tts-command: %w", err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("speak failed: subprocess returned non-zero exit: %w", err)
	}

	return err
}
