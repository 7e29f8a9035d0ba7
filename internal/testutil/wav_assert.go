package testutil

import (
	"bytes"
	"testing"

	"github.com/cwbudde/wav"
)

// decodeFixture parses data as WAV and returns the decoder and its samples.
func decodeFixture(tb testing.TB, data []byte) (*wav.Decoder, []float32) {
	tb.Helper()

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		tb.Fatalf("not a valid WAV file (%d bytes)", len(data))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		tb.Fatalf("read WAV samples: %v", err)
	}

	return dec, buf.Data
}

// AssertValidWAV checks that data is non-empty mono 16-bit PCM at sampleRate.
func AssertValidWAV(tb testing.TB, data []byte, sampleRate int) {
	tb.Helper()

	dec, samples := decodeFixture(tb, data)
	switch {
	case int(dec.SampleRate) != sampleRate:
		tb.Fatalf("WAV sample rate = %d; want %d", dec.SampleRate, sampleRate)
	case dec.NumChans != 1:
		tb.Fatalf("WAV channels = %d; want mono", dec.NumChans)
	case dec.BitDepth != 16:
		tb.Fatalf("WAV bit depth = %d; want 16", dec.BitDepth)
	case len(samples) == 0:
		tb.Fatal("WAV has no samples")
	}
}

// AssertWAVDurationApprox checks that the audio in data lasts between
// minSec and maxSec seconds.
func AssertWAVDurationApprox(tb testing.TB, data []byte, minSec, maxSec float64) {
	tb.Helper()

	dec, samples := decodeFixture(tb, data)
	if dec.SampleRate == 0 || dec.NumChans == 0 {
		tb.Fatalf("WAV header incomplete: rate %d, channels %d", dec.SampleRate, dec.NumChans)
	}

	secs := float64(len(samples)) / float64(dec.NumChans) / float64(dec.SampleRate)
	if secs < minSec || secs > maxSec {
		tb.Fatalf("WAV lasts %.3fs; want %.3fs..%.3fs", secs, minSec, maxSec)
	}
}
