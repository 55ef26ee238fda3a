//go:build !unix

package snapshot

// getInode returns 0 where os.FileInfo carries no file identity. Entries
// then compare by kind, size and mtime only.
func getInode(sys any) uint64 {
	return 0
}
