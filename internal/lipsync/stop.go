package lipsync

import (
	"context"
	"errors"
	"sync"
)

// ErrInterrupted is the cancellation cause of an utterance ended by Stop.
var ErrInterrupted = errors.New("speech interrupted")

// StopSignal is a per-avatar barge-in signal. Each utterance captures the
// current epoch; Stop closes it. A new epoch starts with the first utterance
// after a Stop.
type StopSignal struct {
	mu      sync.Mutex
	epoch   chan struct{}
	stopped bool
}

func NewStopSignal() *StopSignal {
	return &StopSignal{epoch: make(chan struct{})}
}

// Begin returns the epoch an utterance should observe, starting a fresh
// one if the current epoch was already stopped.
func (s *StopSignal) Begin() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.epoch = make(chan struct{})
		s.stopped = false
	}

	return s.epoch
}

// Stop closes the current epoch. It reports whether this call did so;
// repeated calls are no-ops.
func (s *StopSignal) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	close(s.epoch)
	s.stopped = true

	return true
}

// Done returns the current epoch channel.
func (s *StopSignal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.epoch
}

// Context derives a context from parent that is cancelled with
// ErrInterrupted when the current epoch is stopped.
func (s *StopSignal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	epoch := s.Begin()
	ctx, cancel := context.WithCancelCause(parent)

	go func() {
		select {
		case <-epoch:
			cancel(ErrInterrupted)
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}
