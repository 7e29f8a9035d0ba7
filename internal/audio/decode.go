package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/wav"
)

// pcm16Scale maps normalized float samples back to 16-bit signed units.
const pcm16Scale = 32768.0

// ErrInvalidWAV is returned when input is not a decodable PCM WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// DecodeWAV decodes WAV bytes of any sample rate and channel count.
// Channels are averaged down to mono and samples are returned in 16-bit
// signed units (range [-32768, 32767]) along with the source sample rate.
func DecodeWAV(data []byte) ([]float64, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: empty input", ErrInvalidWAV)
	}

	return decodeWAV(bytes.NewReader(data))
}

// DecodeWAVFile decodes the WAV file at path. See DecodeWAV.
func DecodeWAVFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	return decodeWAV(f)
}

// FileDecoder converts an encoded audio file into s16le mono PCM at the
// requested sample rate.
type FileDecoder interface {
	DecodeFile(ctx context.Context, path string, sampleRate int) ([]byte, error)
}

// DecodeFileSamples reads WAV files directly and hands anything else to
// dec, resampled to AnalysisSampleRate. A nil dec disables the fallback.
func DecodeFileSamples(ctx context.Context, path string, dec FileDecoder) ([]float64, int, error) {
	samples, sr, err := DecodeWAVFile(path)
	if !errors.Is(err, ErrInvalidWAV) || dec == nil {
		return samples, sr, err
	}

	pcm, err := dec.DecodeFile(ctx, path, AnalysisSampleRate)
	if err != nil {
		return nil, 0, err
	}
	return PCM16Samples(pcm), AnalysisSampleRate, nil
}

func decodeWAV(r io.ReadSeeker) ([]float64, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 {
		return nil, 0, fmt.Errorf("%w: sample rate %d, channels %d", ErrInvalidWAV, dec.SampleRate, dec.NumChans)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	return downmix(buf.Data, int(dec.NumChans)), int(dec.SampleRate), nil
}

func downmix(data []float32, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(data[i*channels+c])
		}
		out[i] = sum / float64(channels) * pcm16Scale
	}

	return out
}
