package logadapter

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := Zerolog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden", nil)
	l.Warn("connect failed", map[string]any{"attempt": 2, "url": "ws://x"})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["message"] != "connect failed" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["url"] != "ws://x" || entry["attempt"] != float64(2) {
		t.Fatalf("fields lost: %v", entry)
	}
}

func TestZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Zap(zap.New(core))

	l.Info("room created", map[string]any{"room": "ABCD", "maxPlayers": 4})
	l.Error("broker error", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "room created" || ctx["room"] != "ABCD" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel || len(entries[1].Context) != 0 {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

func TestZapNil(t *testing.T) {
	Zap(nil).Warn("discarded", map[string]any{"k": "v"})
}
