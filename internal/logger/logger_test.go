package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"", 0, true},
		{"verbose", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: slog.LevelInfo, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("server listening", "addr", "0.0.0.0:8080")

	out := buf.String()
	if !strings.Contains(out, "server listening") {
		t.Errorf("console output missing message: %q", out)
	}
	if !strings.Contains(out, "addr=0.0.0.0:8080") {
		t.Errorf("console output missing attr: %q", out)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNewFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.log")
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: slog.LevelInfo, File: path, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Warn("journal buffer full", "kind", "status")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "journal buffer full") {
		t.Errorf("file sink missing message: %q", content)
	}
	if !strings.Contains(content, "level=WARN") {
		t.Errorf("file sink missing level: %q", content)
	}
	if !strings.Contains(buf.String(), "journal buffer full") {
		t.Errorf("console sink missing message alongside file sink")
	}
}

func TestNewFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.log")

	for i := 0; i < 2; i++ {
		log, closeFn, err := New(Options{Level: slog.LevelInfo, File: path, Console: &bytes.Buffer{}})
		if err != nil {
			t.Fatalf("New #%d: %v", i, err)
		}
		log.Info("startup")
		if err := closeFn(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if n := strings.Count(string(data), "startup"); n != 2 {
		t.Fatalf("log file has %d startup lines, want 2 (restart must append)", n)
	}
}

func TestNewBadFilePath(t *testing.T) {
	_, _, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "parley.log")})
	if err == nil {
		t.Fatal("New with unwritable file path succeeded")
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.log")
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: slog.LevelWarn, File: path, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("suppressed")
	log.Warn("kept")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for name, content := range map[string]string{"console": buf.String(), "file": string(data)} {
		if strings.Contains(content, "suppressed") {
			t.Errorf("%s sink carries a record below the configured level: %q", name, content)
		}
		if !strings.Contains(content, "kept") {
			t.Errorf("%s sink dropped a record at the configured level: %q", name, content)
		}
	}
}

func TestWithCarriesToAllSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.log")
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: slog.LevelInfo, File: path, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.With("user", "alice").Info("session registered")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for name, content := range map[string]string{"console": buf.String(), "file": string(data)} {
		if !strings.Contains(content, "user=alice") {
			t.Errorf("%s sink missing With attr: %q", name, content)
		}
	}
}
