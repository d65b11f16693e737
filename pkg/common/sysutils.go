package common

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// LockMemory locks current and future pages in memory so the signing key loaded by the client is never
// swapped out to disk. This is a privileged operation and requires CAP_IPC_LOCK.
func LockMemory() {
	err := unix.Mlockall(syscall.MCL_CURRENT | syscall.MCL_FUTURE)
	if err != nil {
		fmt.Printf("Failed to lock memory: %v (CAP_IPC_LOCK missing?)\n", err)
		os.Exit(1)
	}
}

// SetRestrictiveUmask masks the group and world bits so key files and the database are created owner-only.
func SetRestrictiveUmask() {
	syscall.Umask(0077) // cannot fail
}
