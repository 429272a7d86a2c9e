//go:build linux

package component

import (
	"golang.org/x/sys/unix"
)

// setThreadPriority raises the calling thread's scheduling priority by
// lowering its niceness. The caller must be locked to its OS thread.
// Requires elevated privileges for negative niceness; failure is reported,
// not fatal.
func setThreadPriority(priority int) error {
	if priority <= 0 {
		return nil
	}
	nice := -priority
	if nice < -20 {
		nice = -20
	}
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
