package doctor_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/example/go-lipsync/internal/doctor"
	"github.com/example/go-lipsync/internal/testutil"
)

var errBinaryNotFound = errors.New("executable file not found in $PATH")

func version(line string) doctor.VersionFunc {
	return func() (string, error) { return line, nil }
}

func missing() (string, error) { return "", errBinaryNotFound }

func hasFailureContaining(failures []string, substr string) bool {
	for _, f := range failures {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}

func passingConfig(t *testing.T) doctor.Config {
	return doctor.Config{
		FFmpegVersion: version("ffmpeg version 6.1.1 Copyright"),
		FFplayVersion: version("ffplay version 6.1.1 Copyright"),
		TTSName:       "pocket-tts",
		TTSCheck:      version("ok"),
		TempDir:       t.TempDir(),
	}
}

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	var out strings.Builder
	result := doctor.Run(passingConfig(t), &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	for _, want := range []string{"ffmpeg binary", "ffplay binary", "pocket-tts backend", "temp dir"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output should mention %q:\n%s", want, out.String())
		}
	}
}

// ---------------------------------------------------------------------------
// individual failures
// ---------------------------------------------------------------------------

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*doctor.Config)
		want   string
	}{
		{"ffmpeg missing", func(c *doctor.Config) { c.FFmpegVersion = missing }, "ffmpeg binary"},
		{"ffplay missing", func(c *doctor.Config) { c.FFplayVersion = missing }, "ffplay binary"},
		{"ffmpeg too old", func(c *doctor.Config) { c.FFmpegVersion = version("ffmpeg version 3.4 x") }, "ffmpeg version"},
		{"tts missing", func(c *doctor.Config) { c.TTSCheck = missing }, "pocket-tts backend"},
		{"renderer down", func(c *doctor.Config) { c.RendererCheck = missing }, "renderer"},
		{"temp dir missing", func(c *doctor.Config) { c.TempDir = "/nonexistent/lipsync" }, "temp dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := passingConfig(t)
			tt.mutate(&cfg)

			var out strings.Builder
			result := doctor.Run(cfg, &out)

			if !result.Failed() {
				t.Fatal("expected a failure")
			}
			if !hasFailureContaining(result.Failures(), tt.want) {
				t.Errorf("expected failure mentioning %q, got: %v", tt.want, result.Failures())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// markers and skips
// ---------------------------------------------------------------------------

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	cfg := passingConfig(t)
	cfg.FFplayVersion = missing

	var out strings.Builder
	doctor.Run(cfg, &out)

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) {
		t.Errorf("output missing pass marker %q:\n%s", doctor.PassMark, body)
	}
	if !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output missing fail marker %q:\n%s", doctor.FailMark, body)
	}
}

func TestRun_SkippedChecks(t *testing.T) {
	var out strings.Builder
	result := doctor.Run(doctor.Config{}, &out)

	if result.Failed() {
		t.Fatalf("expected no failures when checks are skipped, got: %v", result.Failures())
	}

	body := out.String()
	for _, want := range []string{"ffmpeg binary: skipped", "ffplay binary: skipped", "tts backend: skipped"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output, got:\n%s", want, body)
		}
	}
}

func TestAddFailure(t *testing.T) {
	var out strings.Builder
	result := doctor.Run(doctor.Config{}, &out)
	result.AddFailure("extra: broken")

	if !result.Failed() || !hasFailureContaining(result.Failures(), "extra") {
		t.Fatalf("AddFailure not recorded: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// real binaries
// ---------------------------------------------------------------------------

func TestProbeVersion_FFmpeg(t *testing.T) {
	exe := testutil.RequireFFmpeg(t)

	line, err := doctor.ProbeVersion(exe)()
	if err != nil {
		t.Fatalf("ProbeVersion: %v", err)
	}
	if !strings.Contains(line, "version") {
		t.Fatalf("first line %q does not mention version", line)
	}
}

func TestProbeVersion_Missing(t *testing.T) {
	if _, err := doctor.ProbeVersion("/nonexistent/ffmpeg")(); err == nil {
		t.Fatal("ProbeVersion on missing binary succeeded")
	}
}
