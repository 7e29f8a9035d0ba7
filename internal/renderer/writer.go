package renderer

import (
	"encoding/json"
	"io"
	"sync"
)

// Event is one line written by Writer.
type Event struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value,omitempty"`
	Name  string   `json:"name,omitempty"`
}

// Writer renders to an io.Writer as newline-delimited JSON events. It is the
// default sink for headless use and for piping into another process.
type Writer struct {
	mu          sync.Mutex
	enc         *json.Encoder
	expressions []string
	motions     []string
}

func NewWriter(w io.Writer, expressions, motions []string) *Writer {
	return &Writer{
		enc:         json.NewEncoder(w),
		expressions: append([]string(nil), expressions...),
		motions:     append([]string(nil), motions...),
	}
}

func (w *Writer) write(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.enc.Encode(ev)
}

func (w *Writer) SetMouth(v float64) error {
	v = clamp01(v)
	return w.write(Event{Type: "mouth", Value: &v})
}

func (w *Writer) SetExpression(name string) error {
	return w.write(Event{Type: "expression", Name: name})
}

func (w *Writer) DoMotion(name string) error {
	return w.write(Event{Type: "motion", Name: name})
}

func (w *Writer) Expressions() []string { return append([]string(nil), w.expressions...) }
func (w *Writer) Motions() []string     { return append([]string(nil), w.motions...) }
