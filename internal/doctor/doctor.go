// Package doctor provides environment preflight checks for lipsync.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// minFFmpegMajor is the oldest ffmpeg release whose pipe and s16le handling
// the media pipeline relies on.
const minFFmpegMajor = 4

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// FFmpegVersion returns the first line of `ffmpeg -version`.
	FFmpegVersion VersionFunc
	// FFplayVersion returns the first line of `ffplay -version`.
	FFplayVersion VersionFunc
	// TTSName labels the TTS backend check, e.g. "pocket-tts".
	TTSName string
	// TTSCheck probes the TTS backend. Nil skips the check.
	TTSCheck VersionFunc
	// RendererCheck probes a remote renderer. Nil skips the check.
	RendererCheck VersionFunc
	// TempDir must be writable for file-based synthesis. Empty skips the check.
	TempDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ffmpeg / ffplay --------------------------------------------------
	checkMedia(&res, w, "ffmpeg", cfg.FFmpegVersion)
	checkMedia(&res, w, "ffplay", cfg.FFplayVersion)

	// ---- TTS backend ------------------------------------------------------
	name := cfg.TTSName
	if name == "" {
		name = "tts"
	}
	if cfg.TTSCheck == nil {
		fmt.Fprintf(w, "%s %s backend: skipped\n", PassMark, name)
	} else if ver, err := cfg.TTSCheck(); err != nil {
		res.fail(fmt.Sprintf("%s backend: %v", name, err))
		fmt.Fprintf(w, "%s %s backend: %v\n", FailMark, name, err)
	} else {
		fmt.Fprintf(w, "%s %s backend: %s\n", PassMark, name, ver)
	}

	// ---- renderer ---------------------------------------------------------
	if cfg.RendererCheck != nil {
		if info, err := cfg.RendererCheck(); err != nil {
			res.fail(fmt.Sprintf("renderer: %v", err))
			fmt.Fprintf(w, "%s renderer: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s renderer: %s\n", PassMark, info)
		}
	}

	// ---- temp dir ---------------------------------------------------------
	if cfg.TempDir != "" {
		if err := checkWritable(cfg.TempDir); err != nil {
			res.fail(fmt.Sprintf("temp dir %q: %v", cfg.TempDir, err))
			fmt.Fprintf(w, "%s temp dir %s: %v\n", FailMark, cfg.TempDir, err)
		} else {
			fmt.Fprintf(w, "%s temp dir: %s\n", PassMark, cfg.TempDir)
		}
	}

	return res
}

func checkMedia(res *Result, w io.Writer, name string, probe VersionFunc) {
	if probe == nil {
		fmt.Fprintf(w, "%s %s binary: skipped\n", PassMark, name)
		return
	}

	line, err := probe()
	if err != nil {
		res.fail(fmt.Sprintf("%s binary: %v", name, err))
		fmt.Fprintf(w, "%s %s binary: not found (%v)\n", FailMark, name, err)
		return
	}
	if err := checkFFmpegVersion(line); err != nil {
		res.fail(fmt.Sprintf("%s version: %v", name, err))
		fmt.Fprintf(w, "%s %s version: %v\n", FailMark, name, err)
		return
	}
	fmt.Fprintf(w, "%s %s binary: %s\n", PassMark, name, line)
}

// checkFFmpegVersion rejects releases older than minFFmpegMajor. line is the
// first line of `-version` output, e.g. "ffmpeg version 6.1.1-3ubuntu5
// Copyright ...". Git snapshot builds ("N-1234-g...") have no release
// number and are accepted.
func checkFFmpegVersion(line string) error {
	ver := versionToken(line)
	if ver == "" {
		return fmt.Errorf("cannot find version in %q", line)
	}
	if strings.HasPrefix(ver, "N-") {
		return nil
	}

	major, _, err := parseMajorMinor(strings.TrimPrefix(ver, "n"))
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major < minFFmpegMajor {
		return fmt.Errorf("requires version >=%d, got %s", minFFmpegMajor, ver)
	}
	return nil
}

func versionToken(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(leadingDigits(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}

// leadingDigits trims distro suffixes such as "1-3ubuntu5".
func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	f, err := os.CreateTemp(dir, ".lipsync-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// ProbeVersion runs `exe -version` and returns the first output line.
func ProbeVersion(exe string) VersionFunc {
	return func() (string, error) {
		out, err := exec.CommandContext(context.Background(), exe, "-version").Output()
		if err != nil {
			return "", fmt.Errorf("%s -version failed: %w", exe, err)
		}
		line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
		return strings.TrimSpace(line), nil
	}
}
