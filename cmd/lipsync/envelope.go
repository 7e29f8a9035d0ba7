package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/go-lipsync/internal/audio"
	"github.com/example/go-lipsync/internal/config"
	"github.com/example/go-lipsync/internal/media"
)

type envelope struct {
	FPS        int       `json:"fps"`
	SampleRate int       `json:"sample_rate"`
	Peak       float64   `json:"peak"`
	Frames     []float64 `json:"frames"`
}

func newEnvelopeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "envelope <audio-file>",
		Short: "Print the per-frame amplitude envelope of an audio file",
		Long: `Print the per-frame RMS amplitude envelope of an audio file, normalized
by its peak the same way file playback drives the mouth. WAV files are read
directly; other formats are decoded with ffmpeg.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			env, err := computeEnvelope(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			return writeEnvelope(cmd.OutOrStdout(), env, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit a JSON object instead of one value per line")

	return cmd
}

func computeEnvelope(ctx context.Context, cfg config.Config, path string) (envelope, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dec := media.NewDecoder(media.WithFFmpegPath(cfg.Media.FFmpegPath))
	samples, sr, err := audio.DecodeFileSamples(ctx, path, dec)
	if err != nil {
		return envelope{}, mapSpeakError(fmt.Errorf("decode %s: %w", path, err))
	}

	amps := audio.FileAmplitudes(samples, sr, cfg.Lipsync.FPS)
	peak := audio.Peak(amps)
	frames := make([]float64, len(amps))
	for i, a := range amps {
		if peak > 0 {
			frames[i] = min(a/peak, 1)
		}
	}

	return envelope{FPS: cfg.Lipsync.FPS, SampleRate: sr, Peak: peak, Frames: frames}, nil
}

func writeEnvelope(w io.Writer, env envelope, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(env)
	}

	for _, v := range env.Frames {
		if _, err := io.WriteString(w, strconv.FormatFloat(v, 'f', 4, 64)+"\n"); err != nil {
			return err
		}
	}
	return nil
}
