package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/example/go-lipsync/internal/config"
)

const (
	placeholderText = "{text}"
	placeholderOut  = "{out}"
)

// Command runs an external TTS executable. Text is passed through a
// "{text}" argument placeholder or, when absent, on stdin. Audio is written
// to the "{out}" placeholder path or read from stdout.
type Command struct {
	exe        string
	args       []string
	stream     bool
	formatArgs []string
	format     string
	log        *slog.Logger
}

func NewCommand(cfg config.TTSConfig, logger *slog.Logger) (*Command, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("command backend requires tts.command")
	}
	if logger == nil {
		logger = slog.Default()
	}
	format := strings.TrimPrefix(cfg.Format, ".")
	if format == "" {
		format = "wav"
	}

	return &Command{
		exe:        cfg.Command,
		args:       append([]string(nil), cfg.CommandArgs...),
		stream:     cfg.Stream,
		formatArgs: append([]string(nil), cfg.FormatArgs...),
		format:     format,
		log:        logger,
	}, nil
}

func (c *Command) StreamingEnabled() bool { return c.stream }

func (c *Command) StreamFormatArgs() []string { return append([]string(nil), c.formatArgs...) }

func (c *Command) FileFormat() string { return c.format }

// command builds the exec.Cmd for text. usesOut reports whether the
// arguments reference an output path.
func (c *Command) command(ctx context.Context, text, out string) (*exec.Cmd, bool) {
	var usesText, usesOut bool
	args := make([]string, len(c.args))
	for i, a := range c.args {
		if strings.Contains(a, placeholderText) {
			usesText = true
			a = strings.ReplaceAll(a, placeholderText, text)
		}
		if strings.Contains(a, placeholderOut) {
			usesOut = true
			a = strings.ReplaceAll(a, placeholderOut, out)
		}
		args[i] = a
	}

	cmd := exec.CommandContext(ctx, c.exe, args...)
	if !usesText {
		cmd.Stdin = strings.NewReader(text)
	}
	cmd.Stderr = io.Discard

	return cmd, usesOut
}

func (c *Command) SaveAudio(ctx context.Context, text, path string) error {
	cmd, usesOut := c.command(ctx, text, path)
	if usesOut {
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("tts command: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	cmd.Stdout = f
	runErr := cmd.Run()
	closeErr := f.Close()
	if runErr != nil {
		return fmt.Errorf("tts command: %w", runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close audio file: %w", closeErr)
	}

	return nil
}

// AudioStream starts the command and returns its stdout. Closing the
// stream stops and reaps the process.
func (c *Command) AudioStream(ctx context.Context, text string) (io.ReadCloser, error) {
	cmd, _ := c.command(ctx, text, "-")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("tts stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tts command: %w", err)
	}

	return &processStream{ReadCloser: stdout, cmd: cmd, log: c.log}, nil
}

type processStream struct {
	io.ReadCloser
	cmd  *exec.Cmd
	log  *slog.Logger
	once sync.Once
}

func (p *processStream) Close() error {
	p.once.Do(func() {
		_ = p.ReadCloser.Close()
		if err := p.cmd.Wait(); err != nil {
			p.log.Debug("tts command exited", slog.Any("error", err))
		}
	})

	return nil
}
