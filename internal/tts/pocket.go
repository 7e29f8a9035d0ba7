package tts

import (
	"context"
	"fmt"
	"os"

	pockettts "github.com/MeKo-Christian/go-call-pocket-tts"

	"github.com/example/go-lipsync/internal/config"
)

// PocketTTS synthesizes whole segments to WAV files through the pocket-tts
// CLI. It never streams.
type PocketTTS struct {
	client *pockettts.Client
	exe    string
}

func NewPocketTTS(cfg config.TTSConfig) *PocketTTS {
	return &PocketTTS{
		client: pockettts.NewClient(pockettts.Options{
			Voice:          cfg.Voice,
			Config:         cfg.CLIConfigPath,
			Quiet:          cfg.Quiet,
			ExecutablePath: cfg.CLIPath,
			Concurrency:    cfg.Concurrency,
		}),
		exe: cfg.CLIPath,
	}
}

func (p *PocketTTS) StreamingEnabled() bool { return false }

func (p *PocketTTS) FileFormat() string { return "wav" }

// Preflight reports whether the pocket-tts executable can be resolved.
func (p *PocketTTS) Preflight() error {
	return pockettts.Preflight(p.exe)
}

func (p *PocketTTS) SaveAudio(ctx context.Context, text, path string) error {
	res, err := p.client.Generate(ctx, text)
	if err != nil {
		return fmt.Errorf("pocket-tts generate: %w", err)
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}

	return nil
}
