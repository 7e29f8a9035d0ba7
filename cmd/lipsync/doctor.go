package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-lipsync/internal/config"
	"github.com/example/go-lipsync/internal/doctor"
	"github.com/example/go-lipsync/internal/renderer"
	"github.com/example/go-lipsync/internal/tts"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local media, TTS and renderer checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dcfg, err := doctorConfig(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backend: %s\n", dcfg.TTSName)

			result := doctor.Run(dcfg, out)
			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

func doctorConfig(cfg config.Config) (doctor.Config, error) {
	backend, err := config.NormalizeBackend(cfg.TTS.Backend)
	if err != nil {
		return doctor.Config{}, err
	}
	kind, err := config.NormalizeRenderer(cfg.Renderer.Kind)
	if err != nil {
		return doctor.Config{}, err
	}

	tempDir := cfg.Lipsync.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	dcfg := doctor.Config{
		FFmpegVersion: doctor.ProbeVersion(cfg.Media.FFmpegPath),
		FFplayVersion: doctor.ProbeVersion(cfg.Media.FFplayPath),
		TTSName:       backend,
		TempDir:       tempDir,
	}

	switch backend {
	case config.BackendPocketTTS:
		p := tts.NewPocketTTS(cfg.TTS)
		dcfg.TTSCheck = func() (string, error) {
			if err := p.Preflight(); err != nil {
				return "", err
			}
			return "executable found", nil
		}
	case config.BackendCommand:
		command := cfg.TTS.Command
		dcfg.TTSCheck = func() (string, error) {
			if strings.TrimSpace(command) == "" {
				return "", errors.New("tts.command is not set")
			}
			path, err := exec.LookPath(command)
			if err != nil {
				return "", err
			}
			return path, nil
		}
	}

	if kind == config.RendererHTTP {
		remote := renderer.NewRemote(cfg.Renderer.URL, time.Duration(cfg.Renderer.TimeoutMS)*time.Millisecond)
		dcfg.RendererCheck = func() (string, error) {
			labels := remote.Expressions()
			if labels == nil {
				return "", fmt.Errorf("%s did not answer GET /expressions", cfg.Renderer.URL)
			}
			return fmt.Sprintf("%s (%d expressions)", cfg.Renderer.URL, len(labels)), nil
		}
	}

	return dcfg, nil
}
