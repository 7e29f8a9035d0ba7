package config

import (
	"fmt"
	"strings"
)

const (
	BackendPocketTTS = "pocket-tts"
	BackendCommand   = "command"
)

const (
	RendererStdout    = "stdout"
	RendererHTTP      = "http"
	RendererWebSocket = "websocket"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendPocketTTS
	}
	switch backend {
	case BackendPocketTTS, BackendCommand:
		return backend, nil
	case "pockettts", "pocket":
		return BackendPocketTTS, nil
	case "cli", "exec":
		return BackendCommand, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s)",
			raw,
			BackendPocketTTS,
			BackendCommand,
		)
	}
}

func NormalizeRenderer(raw string) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(raw))
	if kind == "" {
		kind = RendererStdout
	}
	switch kind {
	case RendererStdout, RendererHTTP, RendererWebSocket:
		return kind, nil
	case "remote":
		return RendererHTTP, nil
	case "ws", "script":
		return RendererWebSocket, nil
	default:
		return "", fmt.Errorf(
			"invalid renderer %q (expected %s|%s|%s)",
			raw,
			RendererStdout,
			RendererHTTP,
			RendererWebSocket,
		)
	}
}
