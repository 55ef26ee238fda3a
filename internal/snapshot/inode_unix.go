//go:build unix

package snapshot

import "syscall"

// getInode extracts the inode number from os.FileInfo.Sys().
func getInode(sys any) uint64 {
	if stat, ok := sys.(*syscall.Stat_t); ok {
		return uint64(stat.Ino)
	}
	return 0
}
