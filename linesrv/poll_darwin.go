//go:build darwin

package linesrv

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// pendingBytes asks the kernel how many received bytes are queued (FIONREAD).
func pendingBytes(raw syscall.RawConn) (int, error) {
	var (
		n     int
		opErr error
	)

	err := raw.Control(func(fd uintptr) {
		n, opErr = unix.IoctlGetInt(int(fd), unix.FIONREAD)
	})
	if err != nil {
		return 0, err
	}

	return n, opErr
}
