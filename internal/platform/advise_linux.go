//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// AdviseSequential tells the kernel that fd will be read front to back so
// readahead can be widened. The hint is advisory; failures are ignored.
//
//nolint:gosec // G115: fd values are small non-negative integers
func AdviseSequential(fd *os.File, size int64) ReadMethod {
	if err := unix.Fadvise(int(fd.Fd()), 0, size, unix.FADV_SEQUENTIAL); err != nil {
		return ReadBuffered
	}
	return ReadSequential
}

// DropCache releases the page cache for a fully hashed file so large batches
// do not evict the working set of other processes.
//
//nolint:gosec // G115: fd values are small non-negative integers
func DropCache(fd *os.File, size int64) {
	//nolint:errcheck // fadvise is advisory
	unix.Fadvise(int(fd.Fd()), 0, size, unix.FADV_DONTNEED)
}
