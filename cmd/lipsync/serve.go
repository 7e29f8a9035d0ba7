package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-lipsync/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lipsync HTTP control server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg, cmd.OutOrStdout(), slog.Default())
			if err != nil {
				return err
			}
			if err := preflight(cfg, a.backend); err != nil {
				return mapSpeakError(err)
			}

			opts := []server.Option{
				server.WithLogger(slog.Default()),
				server.WithMetrics(a.registry),
			}
			if a.hub != nil {
				defer a.hub.Close()
				if cfg.Server.Script {
					opts = append(opts, server.WithScriptHub(a.hub))
				} else {
					slog.Warn("websocket renderer without --server-script has no viewers")
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			slog.Info("serving", slog.String("addr", cfg.Server.ListenAddr))
			return server.New(cfg, a, opts...).Start(ctx)
		},
	}

	return cmd
}
