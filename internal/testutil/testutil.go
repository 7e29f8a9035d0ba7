// Package testutil provides shared skip helpers and fixtures for tests that
// touch external binaries or audio files.
//
// Each Require helper calls t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestDecodeIntegration(t *testing.T) {
//	    testutil.RequireFFmpeg(t)
//	    path := testutil.WriteToneWAV(t, t.TempDir(), 22050, 0.5, 0.25)
//	    ...
//	}
package testutil

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/example/go-lipsync/internal/audio"
)

func requireBinary(tb testing.TB, envVar, fallback string) string {
	tb.Helper()

	exe := os.Getenv(envVar)
	if exe == "" {
		exe = fallback
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		tb.Skipf("%s binary not available (%q not in PATH); set %s to override", fallback, exe, envVar)
		return ""
	}

	return path
}

// RequireFFmpeg skips the test if ffmpeg is not found in PATH or at
// LIPSYNC_MEDIA_FFMPEG_PATH. It returns the resolved executable.
func RequireFFmpeg(tb testing.TB) string {
	tb.Helper()
	return requireBinary(tb, "LIPSYNC_MEDIA_FFMPEG_PATH", "ffmpeg")
}

// RequireFFplay skips the test if ffplay is not found in PATH or at
// LIPSYNC_MEDIA_FFPLAY_PATH.
func RequireFFplay(tb testing.TB) string {
	tb.Helper()
	return requireBinary(tb, "LIPSYNC_MEDIA_FFPLAY_PATH", "ffplay")
}

// RequirePocketTTS skips the test if the pocket-tts binary is not found in
// PATH or at LIPSYNC_TTS_CLI_PATH.
func RequirePocketTTS(tb testing.TB) string {
	tb.Helper()
	return requireBinary(tb, "LIPSYNC_TTS_CLI_PATH", "pocket-tts")
}

// FakeExecutable writes a /bin/sh script named name into a temp dir and
// returns its path. Arguments passed to the script are available as "$@".
// The test is skipped on platforms without /bin/sh.
func FakeExecutable(tb testing.TB, name, body string) string {
	tb.Helper()

	if runtime.GOOS == "windows" {
		tb.Skip("shell script fakes are not supported on windows")
		return ""
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		tb.Skip("/bin/sh not available")
		return ""
	}

	path := filepath.Join(tb.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	// #nosec G306 -- test fixture must be executable.
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		tb.Fatalf("write fake executable: %v", err)
	}

	return path
}

// WriteToneWAV writes a mono 16-bit sine tone of the given duration and
// peak (0..1) to dir and returns its path. A zero peak writes silence.
func WriteToneWAV(tb testing.TB, dir string, sampleRate int, seconds, peak float64) string {
	tb.Helper()

	n := int(float64(sampleRate) * seconds)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(peak * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	path := filepath.Join(dir, fmt.Sprintf("tone_%d_%dms.wav", sampleRate, int(seconds*1000)))
	if err := audio.WriteWAVFile(path, samples, sampleRate); err != nil {
		tb.Fatalf("write tone wav: %v", err)
	}

	return path
}
