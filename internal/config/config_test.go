package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dubcast/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Pipeline.MaxQueue != 10 {
		t.Fatalf("expected default max_queue, got %d", cfg.Pipeline.MaxQueue)
	}
	if cfg.Pipeline.DefaultLanguage != "Chinese" {
		t.Fatalf("expected default language, got %q", cfg.Pipeline.DefaultLanguage)
	}
	if cfg.Services.TTS.BaseURL == "" {
		t.Fatal("expected default tts base url")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := writeConfig(t, `
[paths]
data_dir = "~/dubcast-data"
log_dir = "~/dubcast-logs"

[pipeline]
max_queue = 4
max_concurrent = 99
default_speed = 1.25

[services.translate]
base_url = "http://localhost:9999/"
timeout_seconds = 30
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path, got %q exists=%v", resolved, exists)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Fatalf("expected home expansion, got %q", cfg.Paths.DataDir)
	}
	if cfg.Pipeline.MaxQueue != 4 {
		t.Fatalf("expected max_queue override, got %d", cfg.Pipeline.MaxQueue)
	}
	if cfg.Pipeline.MaxConcurrent != config.MaxConcurrentLimit {
		t.Fatalf("expected max_concurrent clamped to %d, got %d", config.MaxConcurrentLimit, cfg.Pipeline.MaxConcurrent)
	}
	if cfg.Services.Translate.BaseURL != "http://localhost:9999" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Services.Translate.BaseURL)
	}
	if cfg.Services.Translate.TimeoutSeconds != 30 {
		t.Fatalf("expected timeout override, got %d", cfg.Services.Translate.TimeoutSeconds)
	}
	if cfg.Services.Media.TimeoutSeconds != 600 {
		t.Fatalf("expected default media timeout, got %d", cfg.Services.Media.TimeoutSeconds)
	}
}

func TestLoadRejectsInvalidStorage(t *testing.T) {
	path := writeConfig(t, `
[storage]
enabled = true
endpoint = "minio.local:9000"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for storage without bucket and credentials")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.RunsDir = filepath.Join(base, "runs")
	cfg.Paths.AssetDir = filepath.Join(base, "assets")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.RunsDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample to load, exists=%v err=%v", exists, err)
	}
}
