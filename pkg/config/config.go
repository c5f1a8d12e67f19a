// pkg/config/config.go - configuration settings for rollout.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the engine looks for its optional configuration.
// The ROLLOUT_CONFIG environment variable overrides it.
const DefaultConfigPath = `C:\ProgramData\Rollout\Config.yaml`

// Configuration holds the configurable options for rollout in YAML format.
type Configuration struct {
	LogLevel           string `yaml:"LogLevel"`
	LogDir             string `yaml:"LogDir"`
	DefaultInstallRoot string `yaml:"DefaultInstallRoot"`

	// LockWaitSeconds is how long install/uninstall waits for the install
	// root lock before giving up.
	LockWaitSeconds int `yaml:"LockWaitSeconds"`

	// RetryAttempts is the default for the CLI --retries flag. The engine
	// itself never retries; a retry is a full re-run after a clean rollback.
	RetryAttempts int `yaml:"RetryAttempts"`

	// SpaceSlackBytes is added on top of the manifest payload size when
	// checking free disk space.
	SpaceSlackBytes uint64 `yaml:"SpaceSlackBytes"`
}

func configPath() string {
	if p := os.Getenv("ROLLOUT_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Default returns the built-in configuration used when no config file exists.
func Default() *Configuration {
	cfg := &Configuration{
		LogLevel:        "INFO",
		LockWaitSeconds: 10,
		RetryAttempts:   0,
		SpaceSlackBytes: 16 << 20,
	}
	if runtime.GOOS == "windows" {
		cfg.LogDir = `C:\ProgramData\Rollout\Logs`
		cfg.DefaultInstallRoot = os.Getenv("ProgramFiles")
	}
	return cfg
}

// LoadConfig loads the configuration from the YAML file, falling back to
// defaults when the file does not exist.
func LoadConfig() (*Configuration, error) {
	path := configPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration file %s: %w", path, err)
	}
	if cfg.LockWaitSeconds < 0 {
		cfg.LockWaitSeconds = 0
	}
	return cfg, nil
}

// SaveConfig saves the current configuration to the YAML file.
func SaveConfig(cfg *Configuration) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
