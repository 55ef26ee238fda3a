//go:build windows

package backend

func init() {
	register(Windows, Capabilities{Subscribe: true, Recursive: true, ExactCreateDelete: true}, newNotifyBackend(Windows))
}
