//go:build !windows

package state

import "syscall"

// flockLock blocks until an exclusive advisory lock on fd is held.
func flockLock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

func flockUnlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
