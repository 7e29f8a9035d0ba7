package lipsync

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Normalizer maps a raw amplitude to a mouth value in [0, 1].
type Normalizer interface {
	Normalize(amplitude float64) float64
}

// RunningMax normalizes by the largest amplitude seen so far. The maximum
// starts at 1.0 and never decreases, so early loud frames reach 1.0 and
// later frames compress as louder ones arrive.
type RunningMax struct {
	max float64
}

func NewRunningMax() *RunningMax {
	return &RunningMax{max: 1.0}
}

func (r *RunningMax) Normalize(a float64) float64 {
	if a > r.max {
		r.max = a
	}

	return clamp01(a / r.max)
}

// Max returns the current running maximum.
func (r *RunningMax) Max() float64 { return r.max }

// PeakNormalizer divides by a precomputed peak. A non-positive peak maps
// every frame to 0.
type PeakNormalizer float64

func (p PeakNormalizer) Normalize(a float64) float64 {
	if p <= 0 {
		return 0
	}

	return clamp01(a / float64(p))
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

// DriverState is the lifecycle state of a Driver run.
type DriverState int32

const (
	StateIdle DriverState = iota
	StateRunning
	StateStopped
)

func (s DriverState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Driver pushes one mouth value per frame to a Renderer at a fixed rate.
type Driver struct {
	renderer Renderer
	interval time.Duration
	log      *slog.Logger
	state    atomic.Int32
}

func NewDriver(r Renderer, fps int, logger *slog.Logger) *Driver {
	if fps < 1 {
		fps = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		renderer: r,
		interval: time.Second / time.Duration(fps),
		log:      logger,
	}
}

func (d *Driver) State() DriverState { return DriverState(d.state.Load()) }

// Run consumes frames until the channel closes or ctx is done and returns
// the number of values pushed. Ticks are best effort: late frames are not
// caught up. The mouth is set to 0 on every exit; remaining frames are not
// drained after cancellation.
func (d *Driver) Run(ctx context.Context, frames <-chan float64, norm Normalizer) int {
	d.state.Store(int32(StateRunning))
	defer d.state.Store(int32(StateStopped))
	defer d.setMouth(0)

	timer := time.NewTimer(d.interval)
	timer.Stop()
	defer timer.Stop()

	pushed := 0
	for {
		var (
			amp float64
			ok  bool
		)
		select {
		case <-ctx.Done():
			return pushed
		case amp, ok = <-frames:
			if !ok {
				return pushed
			}
		}

		d.setMouth(norm.Normalize(amp))
		pushed++

		timer.Reset(d.interval)
		select {
		case <-ctx.Done():
			return pushed
		case <-timer.C:
		}
	}
}

func (d *Driver) setMouth(v float64) {
	if err := d.renderer.SetMouth(v); err != nil {
		d.log.Debug("set mouth failed", slog.Float64("value", v), slog.Any("error", err))
	}
}

// frameChannel returns a closed channel pre-filled with amps.
func frameChannel(amps []float64) <-chan float64 {
	ch := make(chan float64, len(amps))
	for _, a := range amps {
		ch <- a
	}
	close(ch)

	return ch
}
