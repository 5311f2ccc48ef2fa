//go:build !windows

package tracestore

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile blocks until an advisory lock on f is held. Writers take it
// exclusive so appended records never interleave; readers take it shared.
func lockFile(f *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
