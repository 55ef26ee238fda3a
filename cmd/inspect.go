package cmd

import (
	"os"

	"github.com/prettymuchbryce/treewatch/internal/fs"
	"github.com/prettymuchbryce/treewatch/internal/pathutil"
	"github.com/prettymuchbryce/treewatch/internal/report"
	"github.com/prettymuchbryce/treewatch/internal/snapshot"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the tree recorded in a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := snapshot.Load(fs.NewReal(), pathutil.ExpandTilde(args[0]))
		if err != nil {
			return err
		}
		report.PrintSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
