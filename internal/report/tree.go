package report

import (
	"fmt"
	"io"
	"path"

	"github.com/charmbracelet/lipgloss"
	"github.com/xlab/treeprint"

	"github.com/prettymuchbryce/treewatch/internal/snapshot"
)

var (
	dirStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // Blue
	symlinkStyle = updateStyle
)

// PrintSnapshot writes the entries of s as a tree rooted at s.Root.
func PrintSnapshot(w io.Writer, s *snapshot.Snapshot) {
	header := pathStyle.Render(s.Root)
	if s.Clock != "" {
		header += " " + detailStyle.Render("clock "+s.Clock)
	}
	tree := treeprint.NewWithRoot(header)

	// Paths are in tree order, so a directory's branch exists before its
	// children are added.
	branches := map[string]treeprint.Tree{".": tree}
	for _, rel := range s.Paths() {
		e, _ := s.Get(rel)
		parent, ok := branches[path.Dir(rel)]
		if !ok {
			parent = tree
		}
		name := path.Base(rel)

		switch e.Kind {
		case snapshot.Directory:
			branches[rel] = parent.AddBranch(dirStyle.Render(name + "/"))
		case snapshot.Symlink:
			parent.AddNode(symlinkStyle.Render(name + "@"))
		default:
			parent.AddNode(name + " " + detailStyle.Render(formatSize(e.Size)))
		}
	}

	fmt.Fprint(w, tree.String())
	fmt.Fprintf(w, "%s\n", detailStyle.Render(fmt.Sprintf("%d entries, %s backend, taken %s",
		s.Len(), s.Backend, s.CreatedAt.Format("2006-01-02 15:04:05"))))
}

// formatSize formats a byte count in a human-readable way.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
