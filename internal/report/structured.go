package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/itchyny/timefmt-go"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// Styles for the structured reporter
var (
	createStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	pathStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // Gray
)

const (
	createIcon = "+"
	updateIcon = "~"
	deleteIcon = "-"
)

// DefaultTimeFormat is the strftime format used for batch timestamps.
const DefaultTimeFormat = "%H:%M:%S"

// StructuredReporter prints one styled line per event, grouped by batch.
type StructuredReporter struct {
	w          io.Writer
	timeFormat string
	now        func() time.Time
}

// NewStructured creates a StructuredReporter writing to stdout.
func NewStructured(timeFormat string) *StructuredReporter {
	return NewStructuredWithWriter(os.Stdout, timeFormat)
}

// NewStructuredWithWriter creates a StructuredReporter writing to a custom writer.
func NewStructuredWithWriter(w io.Writer, timeFormat string) *StructuredReporter {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return &StructuredReporter{
		w:          w,
		timeFormat: timeFormat,
		now:        time.Now,
	}
}

// Batch prints every event in the batch. The timestamp is shown once, on
// the first line.
func (r *StructuredReporter) Batch(events []event.Event) {
	if r == nil || len(events) == 0 {
		return
	}
	stamp := timefmt.Format(r.now(), r.timeFormat)
	blank := fmt.Sprintf("%*s", len(stamp), "")

	for i, e := range events {
		prefix := blank
		if i == 0 {
			prefix = stamp
		}
		fmt.Fprintf(r.w, "%s %s %s\n", detailStyle.Render(prefix), icon(e.Type), pathStyle.Render(e.Path))
	}
}

// Error prints a mid-stream failure.
func (r *StructuredReporter) Error(err error) {
	if r == nil {
		return
	}
	stamp := timefmt.Format(r.now(), r.timeFormat)
	fmt.Fprintf(r.w, "%s %s %s\n", detailStyle.Render(stamp), deleteStyle.Render("✗"), err)
}

func icon(t event.Type) string {
	switch t {
	case event.Create:
		return createStyle.Render(createIcon)
	case event.Delete:
		return deleteStyle.Render(deleteIcon)
	default:
		return updateStyle.Render(updateIcon)
	}
}
