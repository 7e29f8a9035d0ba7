package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-lipsync/internal/config"
	"github.com/example/go-lipsync/internal/text"
)

func newSpeakCmd() *cobra.Command {
	var (
		inputText string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Speak annotated text with lip sync",
		Long: `Speak annotated text with lip sync.

Words of the form "(label)" switch the avatar's expression or trigger a
motion when label is known to the renderer. Text comes from --text, the
positional arguments or stdin. Ctrl-C interrupts the current utterance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if inputText == "" {
				inputText = strings.Join(args, " ")
			}
			input, err := readSpeakText(inputText, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if dryRun {
				return printSegments(cmd.OutOrStdout(), cfg, input)
			}

			a, err := newApp(cfg, cmd.OutOrStdout(), slog.Default())
			if err != nil {
				return err
			}
			if err := preflight(cfg, a.backend); err != nil {
				return mapSpeakError(err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
			defer cancel()
			stopOnInterrupt(ctx, a)

			return a.SpeakText(ctx, input)
		},
	}

	cmd.Flags().StringVar(&inputText, "text", "", "Text to speak (reads stdin when empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the parsed segments as JSON instead of speaking")

	return cmd
}

// stopOnInterrupt turns SIGINT into a barge-in stop until ctx is done.
func stopOnInterrupt(ctx context.Context, a *app) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				a.Stop()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func readSpeakText(s string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(s) == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		s = string(b)
	}

	input, err := text.Normalize(s)
	if errors.Is(err, text.ErrEmptyText) {
		return "", fmt.Errorf("either provide --text, pass text as arguments or pipe text on stdin: %w", err)
	}
	return input, err
}

// printSegments writes the segments SpeakText would produce, using the
// configured label lists.
func printSegments(w io.Writer, cfg config.Config, input string) error {
	labels := append(append([]string(nil), cfg.Renderer.Expressions...), cfg.Renderer.Motions...)
	segs := text.SplitLongSegments(text.ExtractSegments(input, labels), cfg.Lipsync.MaxSegmentChars)
	if segs == nil {
		segs = []text.Segment{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(segs)
}
