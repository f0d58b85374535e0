// Package linesrv implements a polling, delimiter-framed TCP server.
//
// A Server runs two long-lived goroutines. The Acceptor accepts connections
// into a shared connection set. The Reader repeatedly walks that set, reads
// whatever bytes each connection already has buffered, splits them on the
// configured delimiter and passes every complete message to a Sink. Bytes
// after the last delimiter are kept per connection until the rest of the
// message arrives; a message that never gets its delimiter is never
// delivered.
package linesrv

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-linesrv/connid"
	"github.com/cyberinferno/go-linesrv/connset"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/metrics"
	"github.com/cyberinferno/go-linesrv/partial"
)

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics collector. The default is a fresh collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// Server wires the connection set, the partial-message store, the Acceptor
// and the Reader together.
type Server struct {
	cfg      Config
	sink     Sink
	logger   logger.Logger
	metrics  *metrics.Collector
	conns    *connset.Set[*Conn]
	partials *partial.Store
	ids      *connid.Generator

	mu       sync.Mutex
	ln       net.Listener
	cancel   context.CancelFunc
	closed   bool
	serving  atomic.Bool
	acceptor *Acceptor
}

// New creates a Server that delivers messages to sink.
//
// Parameters:
//   - cfg: Framing and timing configuration
//   - sink: Receiver of complete messages
//   - opts: Optional logger and metrics overrides
//
// Returns:
//   - The server, or an error wrapping ErrInvalidConfig
func New(cfg Config, sink Sink, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidConfig)
	}

	s := &Server{
		cfg:      cfg,
		sink:     sink,
		logger:   logger.NewNopLogger(),
		metrics:  metrics.New(),
		conns:    connset.NewSet[*Conn](),
		partials: partial.NewStore(),
		ids:      connid.NewGenerator(0),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Listen opens a TCP listener on addr. Failures are returned as *OpError.
func (s *Server) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("server failed to listen", logger.Field{Key: "addr", Value: addr}, logger.Field{Key: "error", Value: err})
		return nil, &OpError{Op: "listen", Addr: addr, Err: err}
	}

	return ln, nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := s.Listen(addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve runs the accept and read loops on ln until ctx is done or Stop is
// called, then closes ln and every open connection. It blocks for the
// lifetime of the server.
//
// Returns:
//   - nil after a clean stop
//   - ErrServerRunning if Serve is already active
//   - ErrServerClosed if Stop was called before
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrServerRunning
	}
	defer s.serving.Store(false)

	acceptor := NewAcceptor(ln, s.conns, s.ids, s.cfg.AcceptTimeout, s.logger, s.metrics)
	reader := NewReader(s.conns, s.partials, s.sink, s.cfg, s.logger, s.metrics)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.ln = ln
	s.cancel = cancel
	s.acceptor = acceptor
	s.mu.Unlock()

	s.logger.Info("server started",
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "delimiter", Value: fmt.Sprintf("%q", s.cfg.Delimiter)},
		logger.Field{Key: "accept_timeout", Value: s.cfg.AcceptTimeout.String()},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// an externally closed listener ends Serve
		defer cancel()
		return acceptor.Run(gctx)
	})
	g.Go(func() error { return reader.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		acceptor.RequestStop()
		reader.RequestStop()
		_ = ln.Close()
		return nil
	})

	err := g.Wait()
	s.closeAll()
	s.logger.Info("server stopped",
		logger.Field{Key: "connections_issued", Value: s.ids.Issued()},
		logger.Field{Key: "metrics", Value: s.metrics.Snapshot()},
	)
	return err
}

// Stop ends Serve and prevents further calls to it. It does not wait; Serve
// returns once both loops have observed the request.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

// closeAll closes every registered connection and drops buffered partials.
// Bytes still queued in the kernel for a connection count as discarded.
func (s *Server) closeAll() {
	for _, c := range s.conns.Reset() {
		if n, err := c.Buffered(); err == nil {
			s.metrics.BytesDiscarded(int64(n))
		}
		_ = c.Close()
		s.metrics.ConnectionClosed()
	}

	s.metrics.BytesDiscarded(int64(s.partials.Buffered()))
	s.partials.Reset()
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

// AcceptorState returns the state of the current accept loop.
func (s *Server) AcceptorState() AcceptorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return AcceptorIdle
	}

	return s.acceptor.State()
}

// ConnCount returns the number of registered connections.
func (s *Server) ConnCount() int {
	return s.conns.Len()
}

// Conn returns the registered connection with the given ID.
func (s *Server) Conn(id connid.ID) (*Conn, bool) {
	return s.conns.Get(id)
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}
