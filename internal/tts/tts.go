// Package tts provides the speech synthesis backends driven by the lip-sync
// pipeline: pocket-tts (file based) and an arbitrary command line engine
// that can either write files or stream encoded audio on stdout.
package tts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/go-lipsync/internal/config"
)

// Backend is the capability set every synthesis backend offers.
type Backend interface {
	StreamingEnabled() bool
	SaveAudio(ctx context.Context, text, path string) error
	FileFormat() string
}

// TempName returns a collision-resistant file name of the form
// "{unix}_{16 hex chars}.{ext}".
func TempName(ext string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])

	return fmt.Sprintf("%d_%s.%s", time.Now().Unix(), hex.EncodeToString(b[:]), strings.TrimPrefix(ext, "."))
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.TTSConfig, logger *slog.Logger) (Backend, error) {
	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case config.BackendPocketTTS:
		return NewPocketTTS(cfg), nil
	case config.BackendCommand:
		c, err := NewCommand(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}
}
