package backend

import (
	"errors"
	"fmt"
	iofs "io/fs"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// wrapError classifies a native error into one of the watch error kinds.
// Errors that fit none of them are wrapped as they are.
func wrapError(op, path string, err error) error {
	var we *event.WatchError
	if errors.As(err, &we) {
		return err
	}
	switch {
	case isWatchLimit(err):
		return event.NewError(op, path, event.ErrWatchLimitExceeded, err)
	case errors.Is(err, iofs.ErrNotExist):
		return event.NewError(op, path, event.ErrPathNotFound, err)
	case errors.Is(err, iofs.ErrPermission):
		return event.NewError(op, path, event.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
}

// rootGone is the mid-stream error for a watch root that was deleted or
// moved away.
func rootGone(root string) error {
	return event.NewError("watch", root, event.ErrPathNotFound, errors.New("watch root was removed"))
}

// eventsLost is the mid-stream error for a native queue that overflowed and
// dropped notifications.
func eventsLost(root, detail string) error {
	return event.NewError("watch", root, event.ErrWatchLimitExceeded,
		fmt.Errorf("%w: %s", event.ErrEventsLost, detail))
}
