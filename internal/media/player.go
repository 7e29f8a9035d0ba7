package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
)

// Event identifies a playback lifecycle transition.
type Event int

const (
	EventStart Event = iota
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	ffmpegPath string
	ffplayPath string
	lock       *PlaybackLock
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		ffmpegPath: "ffmpeg",
		ffplayPath: "ffplay",
		logger:     slog.Default(),
	}
}

// Option configures a Player or Decoder.
type Option func(*options)

// WithFFmpegPath sets the ffmpeg executable.
func WithFFmpegPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.ffmpegPath = p
		}
	}
}

// WithFFplayPath sets the ffplay executable.
func WithFFplayPath(p string) Option {
	return func(o *options) {
		if p != "" {
			o.ffplayPath = p
		}
	}
}

// WithLock shares a device lock between players.
func WithLock(l *PlaybackLock) Option {
	return func(o *options) { o.lock = l }
}

// WithLogger sets the slog.Logger used for subprocess diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(optFns []Option) options {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.lock == nil {
		opts.lock = NewPlaybackLock()
	}

	return opts
}

// ---------------------------------------------------------------------------
// Player
// ---------------------------------------------------------------------------

type hook struct {
	id int
	fn func()
}

// Player renders audio to the default output device through ffplay.
type Player struct {
	opts options
	log  *slog.Logger

	mu     sync.Mutex
	nextID int
	hooks  map[Event][]hook
}

func NewPlayer(optFns ...Option) *Player {
	opts := buildOptions(optFns)

	return &Player{
		opts:  opts,
		log:   opts.logger,
		hooks: make(map[Event][]hook),
	}
}

// Connect registers fn for ev and returns a function that removes it.
func (p *Player) Connect(ev Event, fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.hooks[ev] = append(p.hooks[ev], hook{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		hs := p.hooks[ev]
		for i, h := range hs {
			if h.id == id {
				p.hooks[ev] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (p *Player) emit(ev Event) {
	p.mu.Lock()
	hs := append([]hook(nil), p.hooks[ev]...)
	p.mu.Unlock()

	for _, h := range hs {
		h.fn()
	}
}

func (p *Player) ffplayArgs(input string) []string {
	return []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "quiet", "-i", input}
}

// PlayFile plays path and blocks until playback ends. Cancelling ctx kills
// the player; an interrupted playback returns nil.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	if err := p.opts.lock.Acquire(ctx); err != nil {
		return nil
	}
	defer p.opts.lock.Release()

	cmd := exec.CommandContext(ctx, p.opts.ffplayPath, p.ffplayArgs(path)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	p.emit(EventStart)
	defer p.emit(EventStop)

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ffplay: %w", err)
	}

	return nil
}

// PlayStream transcodes chunks to WAV with ffmpeg and pipes the result into
// ffplay. formatArgs describe the input encoding (for example "-f", "mp3").
// chunks is always drained, so the producer never blocks on this consumer.
func (p *Player) PlayStream(ctx context.Context, chunks <-chan []byte, formatArgs []string) error {
	defer func() { go drain(chunks) }()

	if err := p.opts.lock.Acquire(ctx); err != nil {
		return nil
	}
	defer p.opts.lock.Release()

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}

	args := append([]string{"-hide_banner", "-loglevel", "quiet"}, formatArgs...)
	args = append(args, "-i", "pipe:0", "-f", "wav", "pipe:1")
	dec := exec.CommandContext(ctx, p.opts.ffmpegPath, args...)
	dec.Stdout = pw
	dec.Stderr = io.Discard
	stdin, err := dec.StdinPipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}

	play := exec.CommandContext(ctx, p.opts.ffplayPath, p.ffplayArgs("pipe:0")...)
	play.Stdin = pr
	play.Stdout = io.Discard
	play.Stderr = io.Discard

	if err := dec.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	if err := play.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = stdin.Close()
		_ = dec.Wait()
		return fmt.Errorf("start ffplay: %w", err)
	}
	// The children hold their own copies of the pipe ends.
	_ = pr.Close()
	_ = pw.Close()

	p.emit(EventStart)
	defer p.emit(EventStop)

	p.feed(ctx, stdin, chunks)

	decErr := dec.Wait()
	playErr := play.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if decErr != nil || playErr != nil {
		return fmt.Errorf("stream playback: %w", errors.Join(decErr, playErr))
	}

	return nil
}

// feed copies chunks to w until the channel closes, ctx ends or a write
// fails (broken pipe when the child exits early), then closes w.
func (p *Player) feed(ctx context.Context, w io.WriteCloser, chunks <-chan []byte) {
	defer func() { _ = w.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				p.log.Debug("playback feed ended", slog.Any("error", err))
				return
			}
		}
	}
}

func drain(ch <-chan []byte) {
	for range ch {
	}
}
