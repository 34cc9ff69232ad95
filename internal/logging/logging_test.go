package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agent-arena/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitAppliesLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	Init(config.LogConfig{Level: "warn"})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("global level = %v, want warn", zerolog.GlobalLevel())
	}

	Init(config.LogConfig{Level: "bogus"})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("unparseable level should fall back to info, got %v", zerolog.GlobalLevel())
	}
}

func TestInitWritesToFile(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	path := filepath.Join(t.TempDir(), "arena.log")
	Init(config.LogConfig{Level: "info", File: path, MaxMB: 1})
	log.Info().Str("room_id", "r1").Msg("room created")

	if _, err := Writer().Write([]byte("{\"slog\":true}\n")); err != nil {
		t.Fatalf("write via Writer(): %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"room_id":"r1"`) || !strings.Contains(out, `"slog":true`) {
		t.Fatalf("unexpected log file content: %s", out)
	}
}
