package lipsync

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/example/go-lipsync/internal/audio"
)

// speakStreaming holds the playback lock for the whole utterance and plays
// each segment as it streams from the backend.
func (a *Avatar) speakStreaming(ctx context.Context, u *utterance, segs []Segment, s Streamer, tr Translator) {
	if err := a.lock.Acquire(ctx); err != nil {
		u.log.Debug("utterance cancelled before playback")
		return
	}
	defer a.lock.Release()

	for _, seg := range segs {
		if ctx.Err() != nil {
			return
		}
		a.applyTag(u, seg.Expression)
		if isBlank(seg.Text) {
			continue
		}
		a.streamSegment(ctx, u, s, a.translate(ctx, u, tr, seg.Text))
	}
}

// streamSegment tees the live stream into playback and analysis. Analysis
// decodes to PCM at audio.AnalysisSampleRate and queues one RMS value per
// frame for the driver, normalized by a running maximum that starts fresh
// for every segment. It returns once playback and animation have both
// finished and the decoder has exited.
func (a *Avatar) streamSegment(ctx context.Context, u *utterance, s Streamer, txt string) {
	segCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	rc, err := s.AudioStream(segCtx, txt)
	if err != nil {
		if ctx.Err() == nil {
			a.fault(u, "tts", err)
		}
		return
	}
	a.metrics.ObserveSynthesis(time.Since(start))
	a.metrics.SegmentSpoken()

	// Backends need not make Close idempotent.
	closeStream := sync.OnceFunc(func() { _ = rc.Close() })
	stopClose := context.AfterFunc(segCtx, closeStream)
	defer func() {
		stopClose()
		closeStream()
	}()

	src := &recordingReader{r: rc}
	playCh, pcmCh := Tee(segCtx, src, a.opts.chunkSize)
	format := s.StreamFormatArgs()
	frames := newQueue[float64](segCtx)

	decoded := make(chan struct{})
	go func() {
		defer close(decoded)
		defer close(frames.in)

		err := a.decoder.DecodePCM(segCtx, pcmCh, format, audio.AnalysisSampleRate, func(pcm io.Reader) error {
			fr := audio.NewFrameReader(pcm, a.opts.fps)
			for {
				amp, err := fr.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				select {
				case frames.in <- amp:
				case <-segCtx.Done():
					return segCtx.Err()
				}
			}
		})
		if err != nil && segCtx.Err() == nil {
			a.fault(u, "decode", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.player.PlayStream(segCtx, playCh, format); err != nil && segCtx.Err() == nil {
			a.fault(u, "playback", err)
		}
	}()
	go func() {
		defer wg.Done()
		a.metrics.AddMouthFrames(a.driver.Run(segCtx, frames.out, NewRunningMax()))
	}()
	wg.Wait()

	cancel()
	<-decoded

	if err := src.Err(); err != nil && ctx.Err() == nil {
		a.fault(u, "tts", err)
	}
}

// recordingReader remembers the first non-EOF read error.
type recordingReader struct {
	r   io.Reader
	mu  sync.Mutex
	err error
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}

	return n, err
}

func (r *recordingReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}
