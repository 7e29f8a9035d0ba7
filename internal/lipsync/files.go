package lipsync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-lipsync/internal/audio"
	"github.com/example/go-lipsync/internal/tts"
)

type synthResult struct {
	path string
	err  error
}

// speakFiles synthesizes segments concurrently into temporary files and
// plays them strictly in segment order. Synthesis starts before the
// playback lock is taken; playback waits on each segment's own result.
func (a *Avatar) speakFiles(ctx context.Context, u *utterance, segs []Segment, backend TTS, tr Translator) {
	ext := "wav"
	if f, ok := backend.(fileFormatter); ok && f.FileFormat() != "" {
		ext = f.FileFormat()
	}

	results := make([]synthResult, len(segs))
	ready := make([]chan struct{}, len(segs))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)

		var g errgroup.Group
		g.SetLimit(a.opts.synthWorkers)
		for i, seg := range segs {
			if isBlank(seg.Text) || ctx.Err() != nil {
				close(ready[i])
				continue
			}
			g.Go(func() error {
				defer close(ready[i])
				results[i] = a.synthesize(ctx, u, backend, tr, seg.Text, ext)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		<-dispatched
		for _, r := range results {
			a.removeTemp(u, r.path)
		}
	}()

	if err := a.lock.Acquire(ctx); err != nil {
		u.log.Debug("utterance cancelled before playback")
		return
	}
	defer a.lock.Release()

	for i, seg := range segs {
		if ctx.Err() != nil {
			return
		}
		a.applyTag(u, seg.Expression)
		if isBlank(seg.Text) {
			continue
		}

		select {
		case <-ready[i]:
		case <-ctx.Done():
			return
		}

		r := results[i]
		if r.err != nil {
			if ctx.Err() == nil {
				a.fault(u, "tts", r.err)
			}
			continue
		}
		a.playFileSegment(ctx, u, r.path)
		a.removeTemp(u, r.path)
	}
}

func (a *Avatar) synthesize(ctx context.Context, u *utterance, backend TTS, tr Translator, txt, ext string) synthResult {
	if ctx.Err() != nil {
		return synthResult{err: ctx.Err()}
	}
	path := filepath.Join(a.opts.tempDir, tts.TempName(ext))

	start := time.Now()
	err := backend.SaveAudio(ctx, a.translate(ctx, u, tr, txt), path)
	if err == nil {
		a.metrics.ObserveSynthesis(time.Since(start))
	}

	return synthResult{path: path, err: err}
}

// playFileSegment plays path while the driver replays its precomputed
// envelope, normalized by the file's own peak.
func (a *Avatar) playFileSegment(ctx context.Context, u *utterance, path string) {
	amps := a.fileAmplitudes(ctx, u, path)
	a.metrics.SegmentSpoken()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.player.PlayFile(ctx, path); err != nil && ctx.Err() == nil {
			a.fault(u, "playback", err)
		}
	}()
	go func() {
		defer wg.Done()
		n := a.driver.Run(ctx, frameChannel(amps), PeakNormalizer(audio.Peak(amps)))
		a.metrics.AddMouthFrames(n)
	}()
	wg.Wait()
}

// fileAmplitudes decodes WAV files directly and falls back to the PCM
// decoder for other formats. Failure yields no frames, so the segment
// plays with a closed mouth.
func (a *Avatar) fileAmplitudes(ctx context.Context, u *utterance, path string) []float64 {
	samples, sr, err := audio.DecodeFileSamples(ctx, path, a.decoder)
	if err != nil {
		if ctx.Err() == nil {
			a.fault(u, "decode", err)
		}
		return nil
	}

	return audio.FileAmplitudes(samples, sr, a.opts.fps)
}

func (a *Avatar) removeTemp(u *utterance, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.log.Debug("remove temp audio", slog.String("path", path), slog.Any("error", err))
	}
}
