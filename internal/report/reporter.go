// Package report prints event batches and snapshots for the CLI.
package report

import "github.com/prettymuchbryce/treewatch/internal/event"

// Reporter renders the output of a subscription.
// All methods are nil-safe on the concrete types in this package.
type Reporter interface {
	// Batch reports one delivered event list.
	Batch(events []event.Event)

	// Error reports a mid-stream failure.
	Error(err error)
}

// NullReporter is a no-op reporter for when output is disabled.
type NullReporter struct{}

func (NullReporter) Batch(events []event.Event) {}
func (NullReporter) Error(err error)            {}
