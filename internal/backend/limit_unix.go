//go:build unix

package backend

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isWatchLimit reports whether err means the per-user watch or descriptor
// limit was hit (ENOSPC for inotify watches, EMFILE for kqueue descriptors).
func isWatchLimit(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EMFILE)
}
