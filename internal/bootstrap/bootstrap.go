package bootstrap

import (
	"fmt"
	"os"

	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/store"
)

// Initialize creates the coach home tree and writes the default config file
// when it is missing. It reports whether this was a first run.
func Initialize(cfg *config.Config) (bool, error) {
	dirs := []string{
		cfg.HomeDir,
		cfg.DataDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	body, err := config.DefaultUserConfigTOML()
	if err != nil {
		return false, err
	}
	created, err := store.WriteFileIfMissing(cfg.ConfigPath(), []byte(body), store.PrivateFileMode)
	if err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return created, nil
}
