package linesrv

import (
	"errors"
	"net"

	"github.com/cyberinferno/go-linesrv/connid"
)

var (
	// ErrServerRunning is returned by Serve when the server is already serving.
	ErrServerRunning = errors.New("linesrv: server already running")
	// ErrServerClosed is returned by Serve after Stop has been called.
	ErrServerClosed = errors.New("linesrv: server closed")
	// ErrAlreadyRunning is returned when an accept or read loop is started twice.
	ErrAlreadyRunning = errors.New("linesrv: loop already running")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("linesrv: invalid config")

	errRawUnsupported = errors.New("raw non-blocking read unsupported")
)

// OpError describes a failed transport operation on the listener or on one
// connection.
type OpError struct {
	Op   string    // "listen", "accept", "read", "write"
	Conn connid.ID // zero for listener operations
	Addr string    // remote address for connections, local for the listener
	Err  error
}

func (e *OpError) Error() string {
	s := e.Op
	if !e.Conn.IsZero() {
		s += " " + e.Conn.String()
	}

	if e.Addr != "" {
		s += " " + e.Addr
	}

	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// isTimeout reports whether err is a deadline expiry.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
