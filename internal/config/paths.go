package config

import "path/filepath"

const (
	// Layout under COACH_HOME.
	ConfigFilePath = "config.toml"
	EnvFilePath    = ".env"
	DataDirPath    = "data"
	LogsDirPath    = "logs"
	PIDFilePath    = "coach.pid"

	LedgerFileName = "ledger.db"
	CostsFileName  = "costs.jsonl"
)

func homeConfigPath(home string) string {
	return filepath.Join(home, ConfigFilePath)
}

func defaultHomePath(home string) string {
	return filepath.Join(home, ".repcoach")
}

func (c *Config) ConfigPath() string {
	return homeConfigPath(c.HomeDir)
}

func (c *Config) DataDir() string {
	return filepath.Join(c.HomeDir, DataDirPath)
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir(), LogsDirPath)
}

func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir(), LedgerFileName)
}

func (c *Config) CostsPath() string {
	return filepath.Join(c.LogsDir(), CostsFileName)
}

func (c *Config) PIDPath() string {
	return filepath.Join(c.DataDir(), PIDFilePath)
}
