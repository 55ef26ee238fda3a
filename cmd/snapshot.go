package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/utils"
	"github.com/prettymuchbryce/treewatch/pkg/treewatch"
	"github.com/spf13/cobra"
)

var snapshotOpts watchFlags

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <dir> <file>",
	Short: "Record the state of a directory tree",
	Long: `Record the state of a directory tree so a later "treewatch since" can
report what changed. The file name may contain ${name} (the directory's base
name) and strftime tokens such as %Y-%m-%d.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := snapshotOpts.load(cmd)
		if err != nil {
			return err
		}

		w := newWatcher(cfg, 0)
		defer w.Close()

		path := utils.Template(args[1]).Expand(args[0], time.Now())
		err = w.WriteSnapshot(context.Background(), args[0], path, treewatch.SnapshotOptions{
			Ignore: snapshotOpts.ignoreRules(cfg),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	snapshotOpts.register(snapshotCmd)
	rootCmd.AddCommand(snapshotCmd)
}
