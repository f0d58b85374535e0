package linesrv

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cyberinferno/go-linesrv/connid"
)

// probeWindow is the read deadline used on transports without raw socket
// access. It keeps such reads effectively non-blocking.
const probeWindow = time.Millisecond

// Conn is one accepted connection. The framing engine only reads from it;
// sinks write replies through Write and may Close it.
type Conn struct {
	id       connid.ID
	nc       net.Conn
	raw      syscall.RawConn
	accepted time.Time
	closed   atomic.Bool
	wmu      sync.Mutex
}

// NewConn wraps an accepted net.Conn under the given ID. Transports exposing
// a raw file descriptor are read with a non-blocking recv; anything else
// falls back to a near-zero read deadline.
func NewConn(id connid.ID, nc net.Conn) *Conn {
	c := &Conn{id: id, nc: nc, accepted: time.Now()}
	if sc, ok := nc.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			c.raw = raw
		}
	}

	return c
}

// ID returns the connection's process-unique identifier.
func (c *Conn) ID() connid.ID { return c.id }

// RemoteAddr returns the peer address as a string.
func (c *Conn) RemoteAddr() string {
	if a := c.nc.RemoteAddr(); a != nil {
		return a.String()
	}

	return ""
}

// AcceptedAt returns when the connection was accepted.
func (c *Conn) AcceptedAt() time.Time { return c.accepted }

// NetConn returns the underlying connection. Reading from it directly
// breaks message framing.
func (c *Conn) NetConn() net.Conn { return c.nc }

// Write sends p to the peer. Concurrent writers are serialized so replies
// are never interleaved.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, err := c.nc.Write(p)
	if err != nil {
		return n, &OpError{Op: "write", Conn: c.id, Addr: c.RemoteAddr(), Err: err}
	}

	return n, nil
}

// WriteString is Write for a string.
func (c *Conn) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Close closes the connection. Only the first call has an effect.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return c.nc.Close()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

// Buffered returns how many received bytes are waiting in the kernel
// without blocking. Transports without raw socket access report 0.
func (c *Conn) Buffered() (int, error) {
	if c.raw == nil {
		return 0, nil
	}

	n, err := pendingBytes(c.raw)
	if errors.Is(err, errRawUnsupported) {
		return 0, nil
	}

	return n, err
}

// readAvailable copies bytes already received into buf without waiting.
// It returns 0 and a nil error when nothing is available and io.EOF once
// the peer has closed its side.
func (c *Conn) readAvailable(buf []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}

	if c.raw != nil {
		n, err := recvNonblock(c.raw, buf)
		if !errors.Is(err, errRawUnsupported) {
			return n, err
		}
	}

	return c.readWithDeadline(buf)
}

func (c *Conn) readWithDeadline(buf []byte) (int, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(probeWindow)); err != nil {
		return 0, err
	}

	n, err := c.nc.Read(buf)
	if n > 0 {
		// a pending error resurfaces on the next read
		return n, nil
	}

	if err != nil && isTimeout(err) {
		return 0, nil
	}

	return 0, err
}
