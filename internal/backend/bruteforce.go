package backend

import (
	"context"
	"errors"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// bruteForce has no live notification source. It exists so that snapshot
// operations can name it; the snapshot package does the walking.
type bruteForce struct {
	base
	opts Options
}

func newBruteForce(opts Options) (Backend, error) {
	return &bruteForce{base: newBase(BruteForce), opts: opts}, nil
}

func (b *bruteForce) Start(context.Context) error {
	return event.NewError("subscribe", b.opts.Root, event.ErrBackendUnavailable,
		errors.New("brute-force only supports snapshots"))
}

func (b *bruteForce) WatchCount() int {
	return 0
}

func (b *bruteForce) Stop() error {
	b.shutdown()
	return nil
}
