package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[Level]slog.Level{
		LevelDebug: slog.LevelDebug,
		LevelInfo:  slog.LevelInfo,
		LevelWarn:  slog.LevelWarn,
		"WARNING":  slog.LevelWarn,
		LevelError: slog.LevelError,
		"bogus":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewSloggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Slog.Format = FormatJSON
	l := cfg.NewSloggerTo(&buf)
	l.Info("hello", "port", 18789)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" || rec["port"] != float64(18789) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewSloggerTo_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Slog.Level = LevelWarn
	l := cfg.NewSloggerTo(&buf)
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestNewSloggerTo_ColorWithoutTime(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Slog.Color = true
	cfg.Slog.TimeStamps = false
	cfg.NewSloggerTo(&buf).With("component", "gateway").Error("boom")
	out := buf.String()
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "boom") {
		t.Fatalf("expected level prefix and message, got %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted: %q", out)
	}
	if !strings.Contains(out, "component=gateway") {
		t.Fatalf("attrs lost through WithAttrs: %q", out)
	}
}

func TestAppWriter(t *testing.T) {
	if w := (Config{}).AppWriter(); w != nil {
		t.Fatalf("expected nil writer without file config")
	}
	dir := t.TempDir()
	w := Config{File: FileConfig{Dir: dir}}.AppWriter()
	if w == nil {
		t.Fatalf("expected writer when Dir is set")
	}
	_, _ = w.Write([]byte("line\n"))
	_ = w.Close()
	if _, err := os.Stat(filepath.Join(dir, "clawpanel.log")); err != nil {
		t.Fatalf("app log not created: %v", err)
	}
}

func TestProcessWriter_Defaults(t *testing.T) {
	if w := (Config{}).ProcessWriter("gateway"); w != nil {
		t.Fatalf("expected nil writer without Dir")
	}
	dir := t.TempDir()
	w := Config{File: FileConfig{Dir: dir}}.ProcessWriter("gateway")
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected *lumberjack.Logger, got %T", w)
	}
	if l.Filename != filepath.Join(dir, "gateway.log") {
		t.Fatalf("unexpected filename %q", l.Filename)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
}
