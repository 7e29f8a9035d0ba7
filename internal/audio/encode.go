package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// AnalysisSampleRate is the rate streamed audio is resampled to before
// amplitude analysis.
const AnalysisSampleRate = 22050

// encodeMono writes samples in [-1, 1] as a mono 16-bit PCM WAV to ws.
func encodeMono(ws io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate < 1 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	err := enc.Write(&goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("encode pcm: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav header: %w", err)
	}

	return nil
}

// EncodeWAV returns samples in [-1, 1] as an in-memory mono 16-bit WAV.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	var m memFile
	if err := encodeMono(&m, samples, sampleRate); err != nil {
		return nil, err
	}

	return m.data, nil
}

// WriteWAVFile encodes samples straight into a new file at path.
func WriteWAVFile(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close wav: %w", cerr)
		}
	}()

	return encodeMono(f, samples, sampleRate)
}

// memFile is a growable byte slice with file-like Seek, enough for the
// encoder to patch the RIFF sizes after writing the data chunk.
type memFile struct {
	data []byte
	off  int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.off + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	n := copy(m.data[m.off:], p)
	m.off += n

	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	base := 0
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.off
	case io.SeekEnd:
		base = len(m.data)
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}

	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.off = pos

	return int64(pos), nil
}
