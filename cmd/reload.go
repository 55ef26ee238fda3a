package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration (outstanding clocks are invalidated)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ok := connect()
		if !ok {
			return nil
		}
		defer client.Close()

		result, err := client.Reload()
		if err != nil {
			return fmt.Errorf("failed to reload config: %w", err)
		}

		fmt.Printf("Reloaded %s\n", result.ConfigPath)
		return nil
	},
}

func init() {
	addSocketFlag(reloadCmd)
	rootCmd.AddCommand(reloadCmd)
}
