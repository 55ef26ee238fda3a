//go:build darwin && cgo

package backend

func init() {
	register(FSEvents, Capabilities{Subscribe: true, Recursive: true}, newNotifyBackend(FSEvents))
}
