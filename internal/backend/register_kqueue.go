//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package backend

func init() {
	register(Kqueue, Capabilities{Subscribe: true, ExactCreateDelete: true}, newFsnotifyBackend(Kqueue))
}
