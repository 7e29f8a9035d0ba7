package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// SamplesPerFrame returns the analysis window length for one animation
// frame, never less than one sample.
func SamplesPerFrame(sampleRate, fps int) int {
	if fps < 1 {
		fps = 1
	}

	return max(1, sampleRate/fps)
}

// RMS returns sqrt(mean(x²)) of samples, or 0 for an empty window.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// PCM16RMS returns the RMS of little-endian signed 16-bit samples in b.
// A trailing odd byte is ignored.
func PCM16RMS(b []byte) float64 {
	n := len(b) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(b[i*2:])))
		sum += v * v
	}

	return math.Sqrt(sum / float64(n))
}

// PCM16Samples converts little-endian signed 16-bit PCM to float64 samples.
func PCM16Samples(b []byte) []float64 {
	out := make([]float64, len(b)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(b[i*2:])))
	}

	return out
}

// PCM16Bytes encodes samples as little-endian signed 16-bit PCM.
func PCM16Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	return buf
}

// FileAmplitudes returns one RMS value per 1/fps window of samples. The
// final partial window is included. Empty input yields nil.
func FileAmplitudes(samples []float64, sampleRate, fps int) []float64 {
	if len(samples) == 0 || sampleRate < 1 {
		return nil
	}
	spf := SamplesPerFrame(sampleRate, fps)
	out := make([]float64, 0, (len(samples)+spf-1)/spf)
	for start := 0; start < len(samples); start += spf {
		end := min(start+spf, len(samples))
		out = append(out, RMS(samples[start:end]))
	}

	return out
}

// Peak returns the largest value in amps, or 0.
func Peak(amps []float64) float64 {
	var peak float64
	for _, a := range amps {
		if a > peak {
			peak = a
		}
	}

	return peak
}

// FrameReader yields per-frame RMS amplitudes from a live s16le mono PCM
// stream at AnalysisSampleRate.
type FrameReader struct {
	r   io.Reader
	buf []byte
}

func NewFrameReader(r io.Reader, fps int) *FrameReader {
	return &FrameReader{
		r:   r,
		buf: make([]byte, SamplesPerFrame(AnalysisSampleRate, fps)*2),
	}
}

// Next blocks until a full window is available and returns its RMS.
// A trailing partial window is discarded and reported as io.EOF.
func (fr *FrameReader) Next() (float64, error) {
	_, err := io.ReadFull(fr.r, fr.buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}

	return PCM16RMS(fr.buf), nil
}
