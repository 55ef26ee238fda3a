package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/report"
	"github.com/prettymuchbryce/treewatch/pkg/treewatch"
	"github.com/spf13/cobra"
)

var (
	watchOpts       watchFlags
	watchJSON       bool
	watchTimeFormat string
	watchLatency    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Print changes below a directory as they happen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := watchOpts.load(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var reporter report.Reporter
		if watchJSON {
			reporter = report.NewJSON()
		} else {
			reporter = report.NewStructured(watchTimeFormat)
		}

		w := newWatcher(cfg, watchLatency)
		defer w.Close()

		failed := make(chan error, 1)
		sub, err := w.Subscribe(ctx, args[0], reporter.Batch, treewatch.Options{
			Ignore: watchOpts.ignoreRules(cfg),
			OnError: func(err error) {
				reporter.Error(err)
				select {
				case failed <- err:
				default:
				}
			},
		})
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		slog.Info("watching", "root", sub.Root(), "backend", sub.Backend())

		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return err
		}
	},
}

func init() {
	watchOpts.register(watchCmd)
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print one JSON object per event")
	watchCmd.Flags().StringVar(&watchTimeFormat, "time-format", report.DefaultTimeFormat, "strftime format for timestamps")
	watchCmd.Flags().DurationVar(&watchLatency, "latency", 0, "coalescing window (default from config)")
	rootCmd.AddCommand(watchCmd)
}
