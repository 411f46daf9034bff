package ioworker

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeSpaceBytes reports the bytes available to an unprivileged
// process on the filesystem containing path. Housekeeping calls it
// whenever its 5 s dirty-state flush runs, for
// SessionSnapshot.FreeSpaceBytes.
//
// Parameters:
//   - path: any directory on the target filesystem
//
// Returns the available byte count, or error if the probe fails.
func FreeSpaceBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
