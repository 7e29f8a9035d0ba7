package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// Decoder transcodes audio to signed 16-bit little-endian mono PCM with
// ffmpeg.
type Decoder struct {
	opts options
	log  *slog.Logger
}

func NewDecoder(optFns ...Option) *Decoder {
	opts := buildOptions(optFns)

	return &Decoder{opts: opts, log: opts.logger}
}

func pcmOutputArgs(sampleRate int) []string {
	return []string{"-f", "s16le", "-acodec", "pcm_s16le", "-ac", "1", "-ar", strconv.Itoa(sampleRate), "pipe:1"}
}

// DecodePCM feeds chunks into ffmpeg and hands its PCM output to fn. When
// fn returns the transcoder is stopped and reaped. chunks is always drained.
func (d *Decoder) DecodePCM(
	ctx context.Context,
	chunks <-chan []byte,
	formatArgs []string,
	sampleRate int,
	fn func(pcm io.Reader) error,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append([]string{"-hide_banner", "-loglevel", "quiet"}, formatArgs...)
	args = append(args, "-i", "pipe:0")
	args = append(args, pcmOutputArgs(sampleRate)...)

	cmd := exec.CommandContext(ctx, d.opts.ffmpegPath, args...)
	cmd.Stderr = io.Discard
	stdin, err := cmd.StdinPipe()
	if err != nil {
		go drain(chunks)
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		go drain(chunks)
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		go drain(chunks)
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { go drain(chunks) }()
		defer func() { _ = stdin.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					return
				}
				if _, err := stdin.Write(chunk); err != nil {
					d.log.Debug("decoder feed ended", slog.Any("error", err))
					return
				}
			}
		}
	}()

	fnErr := fn(stdout)
	if fnErr != nil {
		cancel()
	}
	// Unblock ffmpeg before Wait; StdoutPipe must be fully read first.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()
	interrupted := ctx.Err() != nil
	cancel()
	wg.Wait()

	if fnErr != nil {
		return fnErr
	}
	if waitErr != nil && !interrupted {
		return fmt.Errorf("ffmpeg: %w", waitErr)
	}

	return nil
}

// DecodeFile decodes the audio file at path to PCM at sampleRate.
func (d *Decoder) DecodeFile(ctx context.Context, path string, sampleRate int) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "quiet", "-i", path}
	args = append(args, pcmOutputArgs(sampleRate)...)

	cmd := exec.CommandContext(ctx, d.opts.ffmpegPath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	return out.Bytes(), nil
}
