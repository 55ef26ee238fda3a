//go:build !unix && !windows

package backend

func isWatchLimit(err error) bool {
	return false
}
