package doctor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseMajorMinor(t *testing.T) {
	tests := []struct {
		name      string
		ver       string
		wantMajor int
		wantMinor int
		wantErr   bool
	}{
		{"simple", "6.1", 6, 1, false},
		{"with patch", "6.1.1", 6, 1, false},
		{"distro suffix", "4.4-1ubuntu2", 4, 4, false},
		{"single number", "7", 0, 0, true},
		{"empty", "", 0, 0, true},
		{"bad major", "abc.11", 0, 0, true},
		{"bad minor", "6.xyz", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, err := parseMajorMinor(tt.ver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMajorMinor(%q) = (%d,%d,nil); want error", tt.ver, major, minor)
				}

				return
			}

			if err != nil {
				t.Fatalf("parseMajorMinor(%q) error: %v", tt.ver, err)
			}

			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Fatalf("parseMajorMinor(%q) = (%d,%d); want (%d,%d)",
					tt.ver, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestCheckFFmpegVersion(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"release", "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers", false},
		{"minimum", "ffplay version 4.0 Copyright", false},
		{"n-prefixed tag", "ffmpeg version n7.0.2 Copyright", false},
		{"git snapshot", "ffmpeg version N-113054-g1b2c3d4 Copyright", false},
		{"too old", "ffmpeg version 3.4.11 Copyright", true},
		{"no version", "command not recognised", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFFmpegVersion(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkFFmpegVersion(%q) = %v; wantErr=%v", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	if err := checkWritable(dir); err != nil {
		t.Fatalf("checkWritable(temp dir) = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("probe file left behind: %v", entries)
	}

	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := checkWritable(file); err == nil {
		t.Fatal("checkWritable(file) = nil; want error")
	}
	if err := checkWritable(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("checkWritable(missing) = nil; want error")
	}
}
