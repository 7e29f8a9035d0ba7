// Package renderer provides the avatar sinks driven by the lipsync pipeline.
// Script commands can be broadcast to browser viewers over a websocket.
package renderer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/example/go-lipsync/internal/config"
	"github.com/example/go-lipsync/internal/lipsync"
)

// ErrNoHub is returned by New for the websocket kind without a hub.
var ErrNoHub = errors.New("websocket renderer requires a script hub")

// New builds the renderer named by cfg.Kind. out receives JSON lines for the
// stdout kind; hub carries scripts for the websocket kind.
func New(cfg config.RendererConfig, out io.Writer, hub *ScriptHub) (lipsync.Renderer, error) {
	kind, err := config.NormalizeRenderer(cfg.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case config.RendererStdout:
		return NewWriter(out, cfg.Expressions, cfg.Motions), nil
	case config.RendererHTTP:
		timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
		return NewRemote(cfg.URL, timeout, WithLabels(cfg.Expressions, cfg.Motions)), nil
	case config.RendererWebSocket:
		if hub == nil {
			return nil, ErrNoHub
		}
		return NewScript(hub, cfg.Expressions, cfg.Motions), nil
	default:
		return nil, fmt.Errorf("unsupported renderer %q", kind)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
