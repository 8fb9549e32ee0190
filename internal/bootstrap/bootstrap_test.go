package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neoclaw-ai/repcoach/internal/config"
)

func TestInitializeCreatesTreeAndDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{HomeDir: filepath.Join(t.TempDir(), ".repcoach")}

	firstRun, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !firstRun {
		t.Fatalf("expected first run")
	}

	for _, path := range []string{cfg.DataDir(), cfg.LogsDir(), cfg.ConfigPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %q to exist: %v", path, err)
		}
	}

	raw, err := os.ReadFile(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), "user_name") {
		t.Fatalf("expected default goal section, got:\n%s", raw)
	}
}

func TestInitializeKeepsExistingConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{HomeDir: filepath.Join(t.TempDir(), ".repcoach")}
	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cfg.ConfigPath(), []byte("[goal]\nuser_name = \"Sam\"\n"), 0o600); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	firstRun, err := Initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if firstRun {
		t.Fatalf("expected existing config to skip first-run")
	}
	raw, _ := os.ReadFile(cfg.ConfigPath())
	if !strings.Contains(string(raw), "Sam") {
		t.Fatalf("expected config to be preserved, got:\n%s", raw)
	}
}
