package lipsync

import (
	"context"
	"io"
)

// DefaultChunkSize is the read size used when teeing a live audio stream.
const DefaultChunkSize = 4096

// queue is an unbounded single-producer single-consumer channel. Closing
// in flushes pending values to out and then closes out; ctx cancellation
// closes out immediately.
type queue[T any] struct {
	in  chan T
	out chan T
}

func newQueue[T any](ctx context.Context) *queue[T] {
	q := &queue[T]{in: make(chan T), out: make(chan T)}
	go q.run(ctx)

	return q
}

func (q *queue[T]) run(ctx context.Context) {
	defer close(q.out)

	var pending []T
	in := q.in
	for in != nil || len(pending) > 0 {
		var (
			out  chan T
			next T
		)
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			pending = append(pending, v)
		case out <- next:
			var zero T
			pending[0] = zero
			pending = pending[1:]
		case <-ctx.Done():
			return
		}
	}
}

// Tee reads src until EOF, a read error or ctx cancellation and delivers
// every chunk, in order, to both returned channels. Each channel is closed
// after the last chunk. Consumers are buffered independently, so a slow
// consumer never stalls the other; both must be drained.
func Tee(ctx context.Context, src io.Reader, chunkSize int) (<-chan []byte, <-chan []byte) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	a := newQueue[[]byte](ctx)
	b := newQueue[[]byte](ctx)

	go func() {
		defer close(a.in)
		defer close(b.in)

		buf := make([]byte, chunkSize)
		for ctx.Err() == nil {
			n, err := src.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				for _, in := range []chan []byte{a.in, b.in} {
					select {
					case in <- chunk:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return a.out, b.out
}
