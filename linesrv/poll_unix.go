//go:build linux || darwin

package linesrv

import (
	"errors"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// recvNonblock reads whatever is queued on the socket with MSG_DONTWAIT.
// The fd is used directly rather than through the runtime poller, so the
// call never parks the goroutine.
func recvNonblock(raw syscall.RawConn, buf []byte) (int, error) {
	var (
		n     int
		opErr error
	)

	err := raw.Control(func(fd uintptr) {
		n, _, opErr = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
	})
	if err != nil {
		return 0, err
	}

	if opErr != nil {
		if errors.Is(opErr, unix.EAGAIN) || errors.Is(opErr, unix.EWOULDBLOCK) || errors.Is(opErr, unix.EINTR) {
			return 0, nil
		}

		return 0, opErr
	}

	if n == 0 && len(buf) > 0 {
		return 0, io.EOF
	}

	return n, nil
}
