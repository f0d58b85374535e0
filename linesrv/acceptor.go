package linesrv

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-linesrv/connid"
	"github.com/cyberinferno/go-linesrv/connset"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/metrics"
)

// AcceptorState is the lifecycle state of an Acceptor.
type AcceptorState int32

const (
	AcceptorIdle          AcceptorState = iota // Run not called yet
	AcceptorRunning                            // accepting connections
	AcceptorStopRequested                      // stop seen by nobody yet
	AcceptorStopped                            // Run has returned
)

// String returns a human-readable name for the state.
func (s AcceptorState) String() string {
	switch s {
	case AcceptorIdle:
		return "Idle"
	case AcceptorRunning:
		return "Running"
	case AcceptorStopRequested:
		return "StopRequested"
	case AcceptorStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// deadliner is implemented by *net.TCPListener and *net.UnixListener.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Acceptor accepts connections from a listener and registers them in the
// connection set. Every accept is bounded by a deadline, so a stop request
// takes effect within one timeout interval even when nobody connects.
type Acceptor struct {
	ln      net.Listener
	conns   *connset.Set[*Conn]
	ids     *connid.Generator
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Collector

	state atomic.Int32
	stop  atomic.Bool
	done  chan struct{}
}

// NewAcceptor creates an Acceptor in the Idle state.
//
// Parameters:
//   - ln: The listener to accept from; it is not closed by the Acceptor
//   - conns: The set new connections are added to
//   - ids: Source of connection IDs
//   - timeout: Upper bound of a single accept call
//   - log: Logger for accept failures and new connections
//   - m: Metrics collector, may be nil
//
// Returns:
//   - A new Acceptor
func NewAcceptor(
	ln net.Listener,
	conns *connset.Set[*Conn],
	ids *connid.Generator,
	timeout time.Duration,
	log logger.Logger,
	m *metrics.Collector,
) *Acceptor {
	return &Acceptor{
		ln:      ln,
		conns:   conns,
		ids:     ids,
		timeout: timeout,
		logger:  log.With(logger.Field{Key: "component", Value: "acceptor"}),
		metrics: m,
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (a *Acceptor) State() AcceptorState {
	return AcceptorState(a.state.Load())
}

// Done is closed when Run returns.
func (a *Acceptor) Done() <-chan struct{} {
	return a.done
}

// RequestStop asks the accept loop to finish. It returns immediately; the
// loop notices at the top of its next iteration, at most one accept timeout
// later. Calling it before Run makes Run return at once.
func (a *Acceptor) RequestStop() {
	a.stop.Store(true)
	a.state.CompareAndSwap(int32(AcceptorRunning), int32(AcceptorStopRequested))
}

// ShouldStop reports whether a stop has been requested.
func (a *Acceptor) ShouldStop() bool {
	return a.stop.Load()
}

// Run accepts connections until RequestStop is called, ctx is done or the
// listener is closed. Accept timeouts are expected and ignored; other accept
// failures are logged and the loop carries on.
//
// Returns:
//   - ErrAlreadyRunning if Run was called before, nil otherwise
func (a *Acceptor) Run(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(AcceptorIdle), int32(AcceptorRunning)) {
		return ErrAlreadyRunning
	}

	defer func() {
		a.state.Store(int32(AcceptorStopped))
		close(a.done)
	}()

	if a.stop.Load() {
		return nil
	}

	dl, bounded := a.ln.(deadliner)
	if !bounded {
		a.logger.Warn("listener does not support deadlines, stop waits for the next accept")
	}

	for !a.ShouldStop() && ctx.Err() == nil {
		if bounded {
			if err := dl.SetDeadline(time.Now().Add(a.timeout)); err != nil && !errors.Is(err, net.ErrClosed) {
				a.logger.Error("failed to set accept deadline", logger.Field{Key: "error", Value: err})
			}
		}

		nc, err := a.ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				a.logger.Debug("listener closed")
				return nil
			}

			opErr := &OpError{Op: "accept", Addr: a.ln.Addr().String(), Err: err}
			a.metrics.AcceptError(opErr.Error())
			a.logger.Error("accept failed", logger.Field{Key: "error", Value: opErr})
			continue
		}

		a.admit(nc)
	}

	return nil
}

// admit tags nc with a fresh ID and registers it.
func (a *Acceptor) admit(nc net.Conn) {
	c := NewConn(a.ids.Next(), nc)
	a.conns.Add(c.ID(), c)
	a.metrics.ConnectionOpened()
	a.logger.Debug("connection accepted",
		logger.Field{Key: "conn", Value: c.ID().String()},
		logger.Field{Key: "remote", Value: c.RemoteAddr()},
	)
}
