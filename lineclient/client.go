// Package lineclient provides an event-driven TCP client for delimiter
// framed line protocols. It notifies callers of connection state changes,
// complete lines and errors via registered handlers.
package lineclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/go-linesrv/utils"
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("lineclient: client is closed")
	// ErrNotConnected is returned by SendLine without a live connection.
	ErrNotConnected = errors.New("lineclient: not connected")
	// ErrAlreadyConnected is returned by Connect while connected or connecting.
	ErrAlreadyConnected = errors.New("lineclient: already connected or connecting")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial in progress
	Connected                           // Connected and reading
	Closed                              // Client closed; no further use
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new state
	Address   string          // The remote "host:port"
	Timestamp time.Time       // When the change occurred
	Error     error           // Non-nil if the change was caused by an error
}

// LineEvent carries one complete line, without its delimiter.
type LineEvent struct {
	Line      string
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write or dial error occurs.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called asynchronously on state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// LineHandler is called on the read goroutine, once per line, in arrival
// order. It must not block for long.
type LineHandler func(event LineEvent)

// ErrorHandler is called asynchronously when an error occurs.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the client.
type Config struct {
	// Address is the "host:port" to connect to.
	Address string
	// Delimiter terminates every line in both directions.
	Delimiter byte
	// ConnectionTimeout bounds the dial; 0 means no timeout.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds a single SendLine; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadTimeout drops the connection after this long without data; 0 disables it.
	ReadTimeout time.Duration
	// ReadBufferSize is the size of each socket read.
	ReadBufferSize int
}

// DefaultConfig returns a Config for address with a newline delimiter,
// 10s dial and write timeouts, no read timeout and a 4096 byte buffer.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		Delimiter:         '\n',
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    4096,
	}
}

// Client is a line-oriented TCP client. Register handlers, then call
// Connect. It is safe for concurrent use.
type Client struct {
	config Config
	conn   net.Conn
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onLine            LineHandler
	onError           ErrorHandler

	mu     sync.RWMutex
	wmu    sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a client in the Disconnected state.
func New(config Config) *Client {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	return &Client{
		config: config,
		state:  Disconnected,
	}
}

// OnConnectionState registers the state change handler, replacing any
// previous one. Pass nil to clear it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnLine registers the line handler, replacing any previous one.
func (c *Client) OnLine(handler LineHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLine = handler
}

// OnError registers the error handler, replacing any previous one.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the configured address and starts the read goroutine.
//
// Parameters:
//   - ctx: Cancels the dial; it does not affect the established connection
//
// Returns:
//   - nil on success; ErrClosed, ErrAlreadyConnected or the dial error otherwise
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = Connecting
	c.mu.Unlock()
	c.emitConnectionState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.config.Address, err)
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = Connected
	c.wg.Add(1)
	c.mu.Unlock()
	c.emitConnectionState(Connected, nil)

	go c.readLoop(conn)

	return nil
}

// SendLine writes line followed by the delimiter.
//
// Returns:
//   - nil on success; ErrNotConnected or the write error otherwise
func (c *Client) SendLine(line string) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := conn.Write(utils.JoinBytes([]byte(line), []byte{c.config.Delimiter})); err != nil {
		err = fmt.Errorf("send line: %w", err)
		c.emitError(err)
		return err
	}

	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is Connected.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Close shuts the connection and waits for the read goroutine. It is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.setState(Closed, nil)

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	buf := make([]byte, c.config.ReadBufferSize)
	var pending []byte
	for {
		if c.config.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
				c.dropConnection(conn, err)
				return
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			lines, rest := utils.SplitDelimited(buf[:n], c.config.Delimiter)
			for i, line := range lines {
				if i == 0 && len(pending) > 0 {
					line = utils.JoinBytes(pending, line)
					pending = nil
				}
				c.emitLine(string(line))
			}
			if len(rest) > 0 {
				pending = utils.JoinBytes(pending, rest)
			}
		}

		if err != nil {
			if c.isClosed() {
				return
			}
			// pending holds an unterminated fragment; it is dropped with the connection
			c.dropConnection(conn, err)
			return
		}
	}
}

// dropConnection moves to Disconnected after the peer or the network ended
// the connection. A clean EOF is not reported as an error.
func (c *Client) dropConnection(conn net.Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if errors.Is(err, io.EOF) {
		c.setState(Disconnected, nil)
		return
	}

	err = fmt.Errorf("read: %w", err)
	c.emitError(err)
	c.setState(Disconnected, err)
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	if c.closed && state != Closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.emitConnectionState(state, err)
}

func (c *Client) emitConnectionState(state ConnectionState, err error) {
	c.mu.RLock()
	handler := c.onConnectionState
	c.mu.RUnlock()

	if handler != nil {
		go handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitLine(line string) {
	c.mu.RLock()
	handler := c.onLine
	c.mu.RUnlock()

	if handler != nil {
		handler(LineEvent{Line: line, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		go handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
