package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupLevel(t *testing.T) {
	Setup(Config{Level: "warn", Environment: "production"})
	if got := zerolog.GlobalLevel(); got != zerolog.WarnLevel {
		t.Fatalf("global level = %s, want warn", got)
	}

	// Unparseable levels fall back to debug.
	Setup(Config{Level: "loudest", Environment: "production"})
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Fatalf("global level = %s, want debug fallback", got)
	}
}

func TestSetupLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	Setup(Config{Level: "info", Environment: "production", LogFile: path})
	log.Info().Msg("listening")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "listening") {
		t.Fatalf("log file missing entry: %q", data)
	}
}
