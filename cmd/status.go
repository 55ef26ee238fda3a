package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prettymuchbryce/treewatch/internal/config"
	"github.com/prettymuchbryce/treewatch/internal/ipc"
	"github.com/spf13/cobra"
)

var (
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	boldStyle      = lipgloss.NewStyle().Bold(true)
	labelStyle     = lipgloss.NewStyle().Width(12)
	boxStyle       = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("2")).
			Padding(0, 4)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print daemon status (running, enabled, watched roots)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ok := connect()
		if !ok {
			return nil
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		// Show welcome box at top if using default config
		if config.IsDefaultConfig(status.ConfigPath) && len(status.Roots) == 0 {
			welcome := "👋 Welcome to treewatch\n\n" +
				"1. Set " + highlightStyle.Render("watch.backend: daemon") + " in the config file below to route watches here.\n" +
				"2. Watch a directory with " + highlightStyle.Render("treewatch watch <dir>") + "."
			fmt.Println(boxStyle.Render(welcome))
		}

		// Build status value
		var statusValue string
		if status.Enabled {
			statusValue = "🟢 running"
		} else {
			statusValue = "🔴 disabled (run " + boldStyle.Render("treewatch enable") + " to resume)"
		}

		// Build watching value
		var watchingValue string
		if status.Enabled && status.WatchCount > 0 {
			watchingValue = fmt.Sprintf("%d directories", status.WatchCount)
		} else {
			watchingValue = dimStyle.Render("none")
		}

		backendValue := status.Backend
		if backendValue == "" {
			backendValue = dimStyle.Render("none")
		}

		// Print status info
		fmt.Println(labelStyle.Render("status") + statusValue)
		fmt.Println(labelStyle.Render("config") + dimStyle.Render(status.ConfigPath))
		if status.InstanceID != "" {
			fmt.Println(labelStyle.Render("instance") + dimStyle.Render(status.InstanceID))
		}
		fmt.Println(labelStyle.Render("backend") + backendValue)
		fmt.Println(labelStyle.Render("watching") + watchingValue)
		fmt.Println(labelStyle.Render("roots"))
		if len(status.Roots) == 0 {
			fmt.Println("  " + dimStyle.Render("none"))
		}
		for _, root := range status.Roots {
			fmt.Println("  " + formatRoot(root))
		}

		return nil
	},
}

func init() {
	addSocketFlag(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

// formatRoot renders one watched root and its stats line.
func formatRoot(rs ipc.RootStatus) string {
	line := fmt.Sprintf("🟢 %s %s", rs.Root, dimStyle.Render(fmt.Sprintf("(%d dirs, %d subscribers)", rs.WatchCount, rs.Subscribers)))

	stats := fmt.Sprintf("    clock %s, %d journaled", rs.Clock, rs.JournalLength)
	if rs.EventsJournaled != nil {
		stats += fmt.Sprintf(", %d total", *rs.EventsJournaled)
	}
	if rs.LastEventAt != nil && !rs.LastEventAt.IsZero() {
		stats += ", last event " + formatTimeAgo(*rs.LastEventAt)
	}
	return line + "\n  " + dimStyle.Render(stats)
}

// formatTimeAgo formats a time as a human-readable relative time.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
