package cmd

import (
	"fmt"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/backend"
	"github.com/prettymuchbryce/treewatch/internal/config"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
	"github.com/prettymuchbryce/treewatch/pkg/treewatch"
	"github.com/spf13/cobra"
)

// watchFlags are shared by the commands that watch or snapshot a tree.
type watchFlags struct {
	configPath string
	backend    string
	ignore     []string
	logLevel   string
}

func (f *watchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", pathutil.MustDefaultConfigPath(), "path to config file")
	cmd.Flags().StringVarP(&f.backend, "backend", "b", "", "backend to use (inotify, fs-events, kqueue, windows, daemon, brute-force)")
	cmd.Flags().StringArrayVarP(&f.ignore, "ignore", "i", nil, "path or glob to ignore, relative to the root (repeatable)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "override logging.level from the config")
}

// load reads the config file, creating the default one on first use, and
// installs logging.
func (f *watchFlags) load(cmd *cobra.Command) (*config.Config, error) {
	var configPath string
	var err error

	if cmd.Flags().Changed("config") {
		configPath = pathutil.ExpandTilde(f.configPath)
	} else {
		configPath, err = config.EnsureDefaultConfig(f.configPath)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if f.logLevel != "" {
		level = f.logLevel
	}
	SetupLogging(level)

	if f.backend != "" {
		if _, err := backend.ParseKind(f.backend); err != nil {
			return nil, err
		}
		cfg.Watch.Backend = f.backend
	}
	return cfg, nil
}

// ignoreRules returns the configured rules followed by the flag's.
func (f *watchFlags) ignoreRules(cfg *config.Config) []string {
	rules := append([]string{}, cfg.Watch.Ignore...)
	return append(rules, f.ignore...)
}

func newWatcher(cfg *config.Config, latency time.Duration) *treewatch.Watcher {
	if latency <= 0 {
		latency = cfg.Watch.Latency
	}
	return treewatch.New(treewatch.Config{
		Latency:      latency,
		Backend:      cfg.BackendKind(),
		DaemonSocket: cfg.Daemon.Socket,
		PollInterval: cfg.Daemon.PollInterval,
	})
}
