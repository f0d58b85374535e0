package linesrv

import (
	"fmt"
	"time"
)

const (
	// DefaultDelimiter terminates one message.
	DefaultDelimiter byte = '\n'

	// DefaultAcceptTimeout bounds a single accept call so a stop request is
	// observed even when no client connects.
	DefaultAcceptTimeout = 10 * time.Second

	// DefaultIdleSleep is how long the read loop pauses after a pass over
	// every connection that produced no bytes.
	DefaultIdleSleep = time.Millisecond

	// DefaultReadBufferSize is the largest chunk consumed by one
	// non-blocking read.
	DefaultReadBufferSize = 4096
)

// Config holds the tunables of the framing engine.
type Config struct {
	// Delimiter is the byte that ends a message. Any value is allowed.
	Delimiter byte
	// AcceptTimeout bounds each accept; it is the worst-case stop latency
	// of the accept loop.
	AcceptTimeout time.Duration
	// IdleSleep is the pause after an empty poll pass. Zero spins.
	IdleSleep time.Duration
	// ReadBufferSize is the per-read chunk size in bytes.
	ReadBufferSize int
}

// DefaultConfig returns a Config with newline framing and the default
// timings.
func DefaultConfig() Config {
	return Config{
		Delimiter:      DefaultDelimiter,
		AcceptTimeout:  DefaultAcceptTimeout,
		IdleSleep:      DefaultIdleSleep,
		ReadBufferSize: DefaultReadBufferSize,
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.AcceptTimeout <= 0 {
		return fmt.Errorf("%w: accept timeout must be positive, got %s", ErrInvalidConfig, c.AcceptTimeout)
	}

	if c.IdleSleep < 0 {
		return fmt.Errorf("%w: idle sleep must not be negative, got %s", ErrInvalidConfig, c.IdleSleep)
	}

	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: read buffer size must be positive, got %d", ErrInvalidConfig, c.ReadBufferSize)
	}

	return nil
}
