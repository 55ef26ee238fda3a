package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Temporarily stop watching and drop all journals",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ok := connect()
		if !ok {
			return nil
		}
		defer client.Close()

		if err := client.Disable(); err != nil {
			return fmt.Errorf("failed to disable daemon: %w", err)
		}

		fmt.Println("Daemon disabled")
		return nil
	},
}

func init() {
	addSocketFlag(disableCmd)
	rootCmd.AddCommand(disableCmd)
}
