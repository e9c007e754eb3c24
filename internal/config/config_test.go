package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	os.Unsetenv("MARKETDASH_SOURCES_FINNHUB_KEY")
	os.Unsetenv("MARKETDASH_SOURCES_SEC_USER_AGENT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.Port != 5000 {
		t.Errorf("API.Port: got %d, want 5000", cfg.API.Port)
	}
	if cfg.Loader.Stage1TimeoutSec != 90 {
		t.Errorf("Loader.Stage1TimeoutSec: got %d, want 90", cfg.Loader.Stage1TimeoutSec)
	}
	if cfg.Loader.Stage2TimeoutSec != 120 {
		t.Errorf("Loader.Stage2TimeoutSec: got %d, want 120", cfg.Loader.Stage2TimeoutSec)
	}
	if cfg.Loader.TaskPauseMS != 400 {
		t.Errorf("Loader.TaskPauseMS: got %d, want 400", cfg.Loader.TaskPauseMS)
	}
	if cfg.Loader.InitialDelayMS != 2000 {
		t.Errorf("Loader.InitialDelayMS: got %d, want 2000", cfg.Loader.InitialDelayMS)
	}
	if cfg.Markets.CacheTTLSec != 120 {
		t.Errorf("Markets.CacheTTLSec: got %d, want 120", cfg.Markets.CacheTTLSec)
	}
	if got := cfg.Markets.USIndices["^GSPC"]; got != "S&P 500" {
		t.Errorf("USIndices[^GSPC]: got %q", got)
	}
	if len(cfg.Markets.Ratios) != 7 {
		t.Errorf("Markets.Ratios: got %d definitions, want 7", len(cfg.Markets.Ratios))
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want info", cfg.Logging.Level)
	}
}

func TestSectionSymbols(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if syms := cfg.Markets.SectionSymbols("metals_futures"); syms["GC=F"] == "" {
		t.Error("expected GC=F in metals_futures section")
	}
	if syms := cfg.Markets.SectionSymbols("no_such_section"); syms != nil {
		t.Errorf("unknown section: got %v, want nil", syms)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
api:
  port: 9999
loader:
  task_pause_ms: 50
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("API.Port: got %d, want 9999", cfg.API.Port)
	}
	if cfg.Loader.TaskPauseMS != 50 {
		t.Errorf("Loader.TaskPauseMS: got %d, want 50", cfg.Loader.TaskPauseMS)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want debug", cfg.Logging.Level)
	}
	// Values absent from the file keep their defaults.
	if cfg.Loader.Stage1TimeoutSec != 90 {
		t.Errorf("Loader.Stage1TimeoutSec: got %d, want default 90", cfg.Loader.Stage1TimeoutSec)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MARKETDASH_SOURCES_FINNHUB_KEY", "test-key-123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sources.FinnhubKey != "test-key-123" {
		t.Errorf("Sources.FinnhubKey: got %q, want test-key-123", cfg.Sources.FinnhubKey)
	}
}
