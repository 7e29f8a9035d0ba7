package renderer

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Evaluator runs a script command in a viewer.
type Evaluator interface {
	Eval(script string) error
}

// Script renders by emitting viewer script calls:
// set_mouth_y(v), set_expression("name") and do_motion("name").
type Script struct {
	ev          Evaluator
	expressions []string
	motions     []string
}

func NewScript(ev Evaluator, expressions, motions []string) *Script {
	return &Script{
		ev:          ev,
		expressions: append([]string(nil), expressions...),
		motions:     append([]string(nil), motions...),
	}
}

func (s *Script) SetMouth(v float64) error {
	return s.ev.Eval("set_mouth_y(" + strconv.FormatFloat(clamp01(v), 'f', 4, 64) + ")")
}

func (s *Script) SetExpression(name string) error {
	return s.ev.Eval("set_expression(" + strconv.Quote(name) + ")")
}

func (s *Script) DoMotion(name string) error {
	return s.ev.Eval("do_motion(" + strconv.Quote(name) + ")")
}

func (s *Script) Expressions() []string { return append([]string(nil), s.expressions...) }
func (s *Script) Motions() []string     { return append([]string(nil), s.motions...) }

// ---------------------------------------------------------------------------
// ScriptHub
// ---------------------------------------------------------------------------

const (
	viewerSendBuffer = 64
	viewerWriteWait  = 5 * time.Second
	viewerReadLimit  = 4096
)

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// ScriptHub is an http.Handler that accepts websocket viewers and
// broadcasts every evaluated script to all of them as a text message. A
// viewer that falls behind is disconnected.
type ScriptHub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

func NewScriptHub(logger *slog.Logger) *ScriptHub {
	if logger == nil {
		logger = slog.Default()
	}

	return &ScriptHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logger,
		viewers: make(map[*viewer]struct{}),
	}
}

func (h *ScriptHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, viewerSendBuffer)}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	n := len(h.viewers)
	h.mu.Unlock()
	h.log.Info("viewer connected", slog.String("remote", r.RemoteAddr), slog.Int("viewers", n))

	go h.writeLoop(v)

	// Viewers only listen; reads detect disconnects.
	conn.SetReadLimit(viewerReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.dropLocked(v)
	n = len(h.viewers)
	h.mu.Unlock()
	_ = conn.Close()
	h.log.Info("viewer disconnected", slog.String("remote", r.RemoteAddr), slog.Int("viewers", n))
}

func (h *ScriptHub) writeLoop(v *viewer) {
	for msg := range v.send {
		_ = v.conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
		if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = v.conn.Close()
			return
		}
	}
	_ = v.conn.Close()
}

func (h *ScriptHub) dropLocked(v *viewer) {
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		close(v.send)
	}
}

// Eval broadcasts script to every connected viewer. With no viewers the
// script is discarded.
func (h *ScriptHub) Eval(script string) error {
	msg := []byte(script)

	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
			h.log.Warn("dropping slow viewer", slog.String("remote", v.conn.RemoteAddr().String()))
			h.dropLocked(v)
		}
	}

	return nil
}

// Viewers returns the number of connected viewers.
func (h *ScriptHub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.viewers)
}

// Close disconnects every viewer.
func (h *ScriptHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		h.dropLocked(v)
	}
}
