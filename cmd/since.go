package cmd

import (
	"context"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/report"
	"github.com/prettymuchbryce/treewatch/internal/utils"
	"github.com/prettymuchbryce/treewatch/pkg/treewatch"
	"github.com/spf13/cobra"
)

var (
	sinceOpts watchFlags
	sinceJSON bool
)

var sinceCmd = &cobra.Command{
	Use:   "since <dir> <file>",
	Short: "Print what changed in a directory since a snapshot was taken",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sinceOpts.load(cmd)
		if err != nil {
			return err
		}

		w := newWatcher(cfg, 0)
		defer w.Close()

		path := utils.Template(args[1]).Expand(args[0], time.Now())
		events, err := w.GetEventsSince(context.Background(), args[0], path, treewatch.SnapshotOptions{
			Ignore: sinceOpts.ignoreRules(cfg),
		})
		if err != nil {
			return err
		}

		var reporter report.Reporter
		if sinceJSON {
			reporter = report.NewJSON()
		} else {
			reporter = report.NewStructured("")
		}
		reporter.Batch(events)
		return nil
	},
}

func init() {
	sinceOpts.register(sinceCmd)
	sinceCmd.Flags().BoolVar(&sinceJSON, "json", false, "print one JSON object per event")
	rootCmd.AddCommand(sinceCmd)
}
