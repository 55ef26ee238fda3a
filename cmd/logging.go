package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// SetupLogging configures slog with charmbracelet/log for colorful output.
// Unknown levels fall back to info. Debug logging also reports the caller.
func SetupLogging(levelStr string) {
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		level = log.InfoLevel
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		ReportCaller:    level == log.DebugLevel,
	})

	slog.SetDefault(slog.New(logger))
}
