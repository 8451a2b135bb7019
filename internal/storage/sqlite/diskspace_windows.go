//go:build windows

package sqlite

// getAvailableSpace is not reported on Windows.
func getAvailableSpace(string) int64 {
	return 0
}
