package config

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/journal"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
	"github.com/prettymuchbryce/treewatch/internal/watcher"
)

// Config represents the top-level configuration.
type Config struct {
	Watch   WatchConfig   `yaml:"watch"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// WatchConfig configures subscriptions.
type WatchConfig struct {
	// Latency is the coalescing window.
	Latency time.Duration `yaml:"latency"`
	// Backend names the variant to use; empty selects the platform default.
	Backend string `yaml:"backend"`
	// Ignore lists rules applied to every subscription made by the CLI.
	Ignore []string `yaml:"ignore"`
}

// DaemonConfig represents daemon-specific configuration.
type DaemonConfig struct {
	// Socket overrides the platform default socket path.
	Socket string `yaml:"socket"`
	// PollInterval is how often the daemon backend asks for changes.
	PollInterval time.Duration `yaml:"poll_interval"`
	// JournalSize is the number of events retained per root.
	JournalSize int `yaml:"journal_size"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Latency: watcher.DefaultLatency,
	}
}

// DefaultDaemonConfig returns the default daemon configuration.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		PollInterval: 100 * time.Millisecond,
		JournalSize:  journal.DefaultLimit,
	}
}

// DefaultLoggingConfig returns the default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level: "warn",
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Watch:   DefaultWatchConfig(),
		Daemon:  DefaultDaemonConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Load reads and parses a configuration file using the real filesystem.
func Load(path string) (*Config, error) {
	return LoadWithFs(path, afero.NewOsFs())
}

// LoadWithFs reads and parses a configuration file using the provided filesystem.
func LoadWithFs(path string, afs afero.Fs) (*Config, error) {
	expanded := pathutil.ExpandTilde(path)

	data, err := afero.ReadFile(afs, expanded)
	if err != nil {
		return nil, err
	}

	// Start with defaults
	config := Default()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that YAML decoding alone cannot.
func (c *Config) Validate() error {
	if c.Watch.Latency < 0 {
		return fmt.Errorf("watch.latency must not be negative, got %v", c.Watch.Latency)
	}
	if _, err := backend.ParseKind(c.Watch.Backend); err != nil {
		return fmt.Errorf("watch.backend: %w", err)
	}
	if c.Daemon.PollInterval < 0 {
		return fmt.Errorf("daemon.poll_interval must not be negative, got %v", c.Daemon.PollInterval)
	}
	if c.Daemon.JournalSize < 0 {
		return fmt.Errorf("daemon.journal_size must not be negative, got %d", c.Daemon.JournalSize)
	}
	return nil
}

// BackendKind returns the configured backend variant.
func (c *Config) BackendKind() backend.Kind {
	// Validate already rejected unknown names.
	k, _ := backend.ParseKind(c.Watch.Backend)
	return k
}

// ManagerConfig builds the subscription manager settings.
func (c *Config) ManagerConfig(afs afero.Fs) watcher.Config {
	return watcher.Config{
		Latency: c.Watch.Latency,
		Fs:      afs,
		Backend: c.BackendKind(),
		BackendOptions: backend.Options{
			DaemonSocket: c.Daemon.Socket,
			PollInterval: c.Daemon.PollInterval,
		},
	}
}
