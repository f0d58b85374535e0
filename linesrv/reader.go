package linesrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-linesrv/connset"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/metrics"
	"github.com/cyberinferno/go-linesrv/partial"
)

// Reader polls every registered connection for bytes that have already
// arrived, frames them into messages and hands each message to the sink.
// It never blocks on a socket: connections with nothing to read are skipped
// until the next pass.
type Reader struct {
	conns     *connset.Set[*Conn]
	framer    framer
	sink      Sink
	idleSleep time.Duration
	logger    logger.Logger
	metrics   *metrics.Collector

	buf []byte
	acc []byte

	running atomic.Bool
	stop    atomic.Bool
}

// NewReader creates a Reader over conns that buffers unterminated bytes in
// partials and delivers messages to sink.
func NewReader(
	conns *connset.Set[*Conn],
	partials *partial.Store,
	sink Sink,
	cfg Config,
	log logger.Logger,
	m *metrics.Collector,
) *Reader {
	return &Reader{
		conns:     conns,
		framer:    framer{delim: cfg.Delimiter, partials: partials},
		sink:      sink,
		idleSleep: cfg.IdleSleep,
		logger:    log.With(logger.Field{Key: "component", Value: "reader"}),
		metrics:   m,
		buf:       make([]byte, cfg.ReadBufferSize),
	}
}

// RequestStop asks Run to return after the current pass.
func (r *Reader) RequestStop() {
	r.stop.Store(true)
}

// ShouldStop reports whether a stop has been requested.
func (r *Reader) ShouldStop() bool {
	return r.stop.Load()
}

// Run polls until RequestStop is called or ctx is done. Passes that read
// nothing are followed by the configured idle sleep.
//
// Returns:
//   - ErrAlreadyRunning if another Run is active, nil otherwise
func (r *Reader) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	var idle *time.Timer
	if r.idleSleep > 0 {
		idle = time.NewTimer(r.idleSleep)
		idle.Stop()
		defer idle.Stop()
	}

	for !r.ShouldStop() && ctx.Err() == nil {
		if r.Poll() > 0 {
			continue
		}

		if idle == nil {
			runtime.Gosched()
			continue
		}

		idle.Reset(r.idleSleep)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}

	return nil
}

// Poll makes one pass over a snapshot of the connection set and drains every
// connection that has bytes waiting. It must not be called concurrently with
// itself or with Run.
//
// Returns:
//   - The number of bytes read during the pass
func (r *Reader) Poll() int {
	total := 0
	r.conns.Range(func(c *Conn) bool {
		total += r.drain(c)
		return true
	})

	r.metrics.PollPass()
	return total
}

// drain reads c until nothing more is available or its stream ends.
func (r *Reader) drain(c *Conn) int {
	var (
		acc  = r.acc[:0]
		read int
		rerr error
	)

	emit := func(msg []byte) bool {
		r.deliver(c, msg)
		return !c.IsClosed()
	}
	for {
		n, err := c.readAvailable(r.buf)
		if n > 0 {
			read += n
			var open bool
			if acc, open = r.framer.feed(c.ID(), acc, r.buf[:n], emit); !open {
				// the sink closed the connection; what is left of the chunk is dropped
				rerr = net.ErrClosed
				break
			}
		}

		if err != nil {
			rerr = err
			break
		}

		if n == 0 {
			break
		}
	}

	r.framer.flush(c.ID(), acc)
	r.acc = acc[:0]
	r.metrics.BytesReceived(int64(read))

	if rerr != nil {
		r.retire(c, rerr)
	}

	return read
}

// deliver hands one message to the sink, containing any panic it raises.
func (r *Reader) deliver(c *Conn, msg []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.SinkPanic(fmt.Sprint(p))
			r.logger.Error("message sink panicked",
				logger.Field{Key: "conn", Value: c.ID().String()},
				logger.Field{Key: "panic", Value: fmt.Sprint(p)},
			)
		}
	}()

	r.metrics.MessageDelivered()
	r.sink.OnMessage(c, string(msg))
}

// retire unregisters a connection whose stream ended or failed. An
// unterminated trailing message is dropped, never delivered.
func (r *Reader) retire(c *Conn, cause error) {
	if _, ok := r.conns.Remove(c.ID()); !ok {
		return
	}

	dropped := r.framer.partials.Discard(c.ID())
	_ = c.Close()
	r.metrics.ConnectionClosed()
	r.metrics.BytesDiscarded(int64(dropped))

	fields := []logger.Field{
		{Key: "conn", Value: c.ID().String()},
		{Key: "remote", Value: c.RemoteAddr()},
		{Key: "discarded", Value: dropped},
		{Key: "age", Value: time.Since(c.AcceptedAt()).String()},
	}

	if errors.Is(cause, io.EOF) || errors.Is(cause, net.ErrClosed) {
		r.logger.Debug("connection closed", fields...)
		return
	}

	opErr := &OpError{Op: "read", Conn: c.ID(), Addr: c.RemoteAddr(), Err: cause}
	r.metrics.ReadError(opErr.Error())
	r.logger.Error("connection read failed", append(fields, logger.Field{Key: "error", Value: opErr})...)
}
