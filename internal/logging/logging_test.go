package logging

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Robertof/oxixenon/internal/config"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"trace", zerolog.TraceLevel, true},
		{" DEBUG ", zerolog.DebugLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseLevel(%q) = %v,%v want %v,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBuildFileBackend(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "oxixenon.log")
	logger, closer, err := Build(config.Logging{
		Level:    "warn",
		Backends: []string{BackendFile},
		File:     config.FileLogging{Path: path},
	}, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "session").Msg("kept")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", raw)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if entry["message"] != "kept" || entry["component"] != "session" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestBuildDebugFlagLowersLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	logger, closer, err := Build(config.Logging{Level: "error", Backends: []string{BackendStdout}}, true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer closer.Close()
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("unexpected level: %v", logger.GetLevel())
	}
}

func TestBuildEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "trace")
	logger, closer, err := Build(config.Logging{Level: "info", Backends: []string{BackendStdout}}, false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer closer.Close()
	if logger.GetLevel() != zerolog.TraceLevel {
		t.Fatalf("unexpected level: %v", logger.GetLevel())
	}
}

func TestBuildErrors(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	if _, _, err := Build(config.Logging{Level: "info", Backends: []string{"journald"}}, false); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, _, err := Build(config.Logging{Level: "loud", Backends: []string{BackendStdout}}, false); !errors.Is(err, config.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
	if _, _, err := Build(config.Logging{Backends: []string{BackendFile}}, false); !errors.Is(err, config.ErrMissingOption) {
		t.Fatalf("expected ErrMissingOption, got %v", err)
	}
	_, _, err := Build(config.Logging{
		Backends: []string{BackendSyslog},
		Syslog:   config.SyslogLogging{Protocol: "tcp"},
	}, false)
	if !errors.Is(err, config.ErrMissingOption) {
		t.Fatalf("expected ErrMissingOption for syslog server, got %v", err)
	}
}
