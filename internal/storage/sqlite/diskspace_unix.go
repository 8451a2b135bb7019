//go:build !windows

package sqlite

import "syscall"

// getAvailableSpace returns the bytes available to unprivileged users on the filesystem holding path.
func getAvailableSpace(path string) int64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}
