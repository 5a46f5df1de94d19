package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chronologos/kvmlink/internal/config"
)

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "info", Format: "auto"}).Info("hello", "k", 1)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("auto format on a non-terminal should be JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" {
		t.Fatalf("got %v", rec)
	}

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}).Warn("kept")
	if !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadConfigAppliesGlobalFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvmlink.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\nprimary:\n  screens: [laptop]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	gf := &globalFlags{configPath: path, logFormat: "json"}
	cfg, err := gf.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if len(cfg.Primary.Screens) != 1 || cfg.Primary.Screens[0] != "laptop" {
		t.Fatalf("screens = %v", cfg.Primary.Screens)
	}

	gf = &globalFlags{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := gf.loadConfig(); err == nil {
		t.Fatal("expected missing config file to fail")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Fatal("empty version output")
	}
}
