//go:build !linux && !darwin

package linesrv

import "syscall"

func recvNonblock(syscall.RawConn, []byte) (int, error) { return 0, errRawUnsupported }

func pendingBytes(syscall.RawConn) (int, error) { return 0, errRawUnsupported }
