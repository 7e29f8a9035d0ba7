// Package lipsync drives an avatar's mouth from the amplitude envelope of
// synthesized speech while the speech plays.
//
// An Avatar consumes ordered text segments. Streaming backends have their
// live audio teed into a playback pipeline and an analysis pipeline whose
// per-frame RMS values feed the animation Driver. File-based backends
// synthesize every segment to a temporary file, then play and animate the
// files in segment order. Stop interrupts whatever is speaking.
package lipsync

import (
	"context"
	"io"

	"github.com/example/go-lipsync/internal/text"
)

// Renderer is the avatar sink. Mouth values are in [0, 1].
type Renderer interface {
	SetMouth(value float64) error
	SetExpression(name string) error
	DoMotion(name string) error
	Expressions() []string
	Motions() []string
}

// TTS is a speech synthesis backend.
type TTS interface {
	StreamingEnabled() bool
	SaveAudio(ctx context.Context, text, path string) error
}

// Streamer is implemented by backends that can stream encoded audio.
// StreamFormatArgs returns ffmpeg input arguments describing the encoding.
type Streamer interface {
	AudioStream(ctx context.Context, text string) (io.ReadCloser, error)
	StreamFormatArgs() []string
}

// fileFormatter is implemented by backends whose files are not WAV.
type fileFormatter interface {
	FileFormat() string
}

// Translator rewrites segment text before synthesis.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Player renders audio on the output device.
type Player interface {
	PlayFile(ctx context.Context, path string) error
	PlayStream(ctx context.Context, chunks <-chan []byte, formatArgs []string) error
}

// PCMDecoder turns encoded audio into s16le mono PCM.
type PCMDecoder interface {
	DecodePCM(ctx context.Context, chunks <-chan []byte, formatArgs []string, sampleRate int, fn func(pcm io.Reader) error) error
	DecodeFile(ctx context.Context, path string, sampleRate int) ([]byte, error)
}

// Segment is re-exported for callers that only import lipsync.
type Segment = text.Segment
