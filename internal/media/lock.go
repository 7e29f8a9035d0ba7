package media

import "context"

// PlaybackLock is a binary semaphore guarding the audio output device.
type PlaybackLock struct {
	ch chan struct{}
}

func NewPlaybackLock() *PlaybackLock {
	return &PlaybackLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or ctx is done, in which case it
// returns ctx.Err().
func (l *PlaybackLock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock only if it is free.
func (l *PlaybackLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Releasing an unheld lock is a no-op.
func (l *PlaybackLock) Release() {
	select {
	case <-l.ch:
	default:
	}
}
