// Package metrics provides lock-free counters for a running line server.
//
// All methods are safe for concurrent use. A nil *Collector is a valid no-op
// receiver, so components never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one server.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	messagesDelivered atomic.Int64
	bytesIn           atomic.Int64
	bytesDiscarded    atomic.Int64
	acceptErrors      atomic.Int64
	readErrors        atomic.Int64
	sinkPanics        atomic.Int64
	pollPasses        atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the number of connections currently registered.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime accepted-connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// MessageDelivered records one message handed to the sink.
func (c *Collector) MessageDelivered() {
	if c == nil {
		return
	}
	c.messagesDelivered.Add(1)
}

// MessagesDelivered returns the number of messages handed to the sink.
func (c *Collector) MessagesDelivered() int64 {
	if c == nil {
		return 0
	}
	return c.messagesDelivered.Load()
}

// BytesReceived records n bytes read from connections.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// TotalBytesIn returns total bytes read.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// BytesDiscarded records n buffered bytes dropped because their connection
// closed before a delimiter arrived.
func (c *Collector) BytesDiscarded(n int64) {
	if c == nil {
		return
	}
	c.bytesDiscarded.Add(n)
}

// TotalBytesDiscarded returns the number of undelivered bytes dropped.
func (c *Collector) TotalBytesDiscarded() int64 {
	if c == nil {
		return 0
	}
	return c.bytesDiscarded.Load()
}

// PollPass records one full pass of the read loop over the connection set.
func (c *Collector) PollPass() {
	if c == nil {
		return
	}
	c.pollPasses.Add(1)
}

// PollPasses returns the number of completed read-loop passes.
func (c *Collector) PollPasses() int64 {
	if c == nil {
		return 0
	}
	return c.pollPasses.Load()
}

// AcceptError records a failed accept that was not a timeout.
func (c *Collector) AcceptError(msg string) {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
	c.recordError(msg)
}

// ReadError records a failed read on a connection.
func (c *Collector) ReadError(msg string) {
	if c == nil {
		return
	}
	c.readErrors.Add(1)
	c.recordError(msg)
}

// SinkPanic records a recovered panic raised by a message sink.
func (c *Collector) SinkPanic(msg string) {
	if c == nil {
		return
	}
	c.sinkPanics.Add(1)
	c.recordError(msg)
}

// ErrorCount returns the total number of errors of every kind.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load() + c.readErrors.Load() + c.sinkPanics.Load()
}

func (c *Collector) recordError(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	MessagesDelivered int64  `json:"messages_delivered"`
	BytesIn           int64  `json:"bytes_in"`
	BytesDiscarded    int64  `json:"bytes_discarded"`
	PollPasses        int64  `json:"poll_passes"`
	AcceptErrors      int64  `json:"accept_errors"`
	ReadErrors        int64  `json:"read_errors"`
	SinkPanics        int64  `json:"sink_panics"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		MessagesDelivered: c.messagesDelivered.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesDiscarded:    c.bytesDiscarded.Load(),
		PollPasses:        c.pollPasses.Load(),
		AcceptErrors:      c.acceptErrors.Load(),
		ReadErrors:        c.readErrors.Load(),
		SinkPanics:        c.sinkPanics.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a single-line JSON string.
func (c *Collector) JSON() string {
	data, _ := json.Marshal(c.Snapshot())
	return string(data)
}
