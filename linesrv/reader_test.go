package linesrv

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-linesrv/connid"
	"github.com/cyberinferno/go-linesrv/connset"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/metrics"
	"github.com/cyberinferno/go-linesrv/partial"
)

type readerFixture struct {
	reader   *Reader
	conns    *connset.Set[*Conn]
	partials *partial.Store
	metrics  *metrics.Collector
	sink     *recorder
}

func newReaderFixture(cfg Config) *readerFixture {
	f := &readerFixture{
		conns:    connset.NewSet[*Conn](),
		partials: partial.NewStore(),
		metrics:  metrics.New(),
		sink:     &recorder{},
	}
	f.reader = NewReader(f.conns, f.partials, f.sink, cfg, logger.NewNopLogger(), f.metrics)
	return f
}

func (f *readerFixture) register(id connid.ID, nc net.Conn) *Conn {
	c := NewConn(id, nc)
	f.conns.Add(id, c)
	f.metrics.ConnectionOpened()
	return c
}

// pollUntil runs reader passes until cond holds.
func (f *readerFixture) pollUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.reader.Poll()
		return cond()
	}, 2*time.Second, 2*time.Millisecond)
}

func TestReader_Poll_idle_connection(t *testing.T) {
	f := newReaderFixture(DefaultConfig())
	server, _ := tcpPair(t)
	f.register(1, server)

	assert.Equal(t, 0, f.reader.Poll())
	assert.Equal(t, 0, f.sink.len())
	assert.Equal(t, 1, f.conns.Len())
	assert.Equal(t, int64(1), f.metrics.PollPasses())
}

func TestReader_Poll_delivers_in_order(t *testing.T) {
	f := newReaderFixture(DefaultConfig())
	server, client := tcpPair(t)
	c := f.register(1, server)

	_, err := client.Write([]byte("abc\ndef\n"))
	require.NoError(t, err)

	f.pollUntil(t, func() bool { return f.sink.len() == 2 })
	got := f.sink.all()
	assert.Equal(t, []string{"abc", "def"}, f.sink.messages())
	assert.Equal(t, c.ID(), got[0].conn)
	assert.Equal(t, c.ID(), got[1].conn)
	assert.Equal(t, int64(8), f.metrics.TotalBytesIn())
	assert.Equal(t, int64(2), f.metrics.MessagesDelivered())
}

func TestReader_Poll_reassembles_across_cycles(t *testing.T) {
	f := newReaderFixture(DefaultConfig())
	server, client := tcpPair(t)
	f.register(1, server)

	_, err := client.Write([]byte("HEL"))
	require.NoError(t, err)
	f.pollUntil(t, func() bool { return f.partials.Len() == 1 })
	assert.Equal(t, 0, f.sink.len())

	_, err = client.Write([]byte("LO\n"))
	require.NoError(t, err)
	f.pollUntil(t, func() bool { return f.sink.len() == 1 })

	assert.Equal(t, []string{"HELLO"}, f.sink.messages())
	assert.Equal(t, 0, f.partials.Len())
}

func TestReader_Poll_one_byte_buffer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadBufferSize = 1
	f := newReaderFixture(cfg)
	server, client := tcpPair(t)
	f.register(1, server)

	_, err := client.Write([]byte("x\nyz\n"))
	require.NoError(t, err)

	f.pollUntil(t, func() bool { return f.sink.len() == 2 })
	assert.Equal(t, []string{"x", "yz"}, f.sink.messages())
}

func TestReader_Poll_retires_closed_peer(t *testing.T) {
	f := newReaderFixture(DefaultConfig())
	server, client := tcpPair(t)
	c := f.register(1, server)

	_, err := client.Write([]byte("done\ndangling"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	f.pollUntil(t, func() bool { return f.conns.Len() == 0 })

	assert.Equal(t, []string{"done"}, f.sink.messages(), "unterminated tail is never delivered")
	assert.Equal(t, 0, f.partials.Len())
	assert.True(t, c.IsClosed())
	assert.Equal(t, int64(0), f.metrics.ActiveConnections())
	assert.Equal(t, int64(len("dangling")), f.metrics.TotalBytesDiscarded())
	assert.Equal(t, int64(0), f.metrics.ErrorCount(), "orderly close is not an error")
}

func TestReader_Poll_fallback_transport(t *testing.T) {
	f := newReaderFixture(DefaultConfig())
	server, client := net.Pipe()
	defer client.Close()
	f.register(1, server)

	go func() { _, _ = client.Write([]byte("over a pipe\n")) }()
	f.pollUntil(t, func() bool { return f.sink.len() == 1 })
	assert.Equal(t, []string{"over a pipe"}, f.sink.messages())

	require.NoError(t, client.Close())
	f.pollUntil(t, func() bool { return f.conns.Len() == 0 })
}

func TestReader_sink_panic_is_contained(t *testing.T) {
	conns := connset.NewSet[*Conn]()
	m := metrics.New()
	rec := &recorder{}
	sink := SinkFunc(func(c *Conn, msg string) {
		if msg == "boom" {
			panic("sink exploded")
		}
		rec.OnMessage(c, msg)
	})
	r := NewReader(conns, partial.NewStore(), sink, DefaultConfig(), logger.NewNopLogger(), m)

	serverA, clientA := tcpPair(t)
	serverB, clientB := tcpPair(t)
	conns.Add(1, NewConn(1, serverA))
	conns.Add(2, NewConn(2, serverB))

	_, err := clientA.Write([]byte("boom\nafter\n"))
	require.NoError(t, err)
	_, err = clientB.Write([]byte("ok\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r.Poll()
		return rec.len() == 2
	}, 2*time.Second, 2*time.Millisecond)

	byConn := map[connid.ID][]string{}
	for _, d := range rec.all() {
		byConn[d.conn] = append(byConn[d.conn], d.msg)
	}
	assert.Equal(t, []string{"after"}, byConn[1])
	assert.Equal(t, []string{"ok"}, byConn[2])
	assert.Equal(t, int64(1), m.Snapshot().SinkPanics)
	assert.Equal(t, 2, conns.Len(), "a panicking sink does not drop the connection")
}

func TestReader_sink_closing_conn_ends_delivery(t *testing.T) {
	conns := connset.NewSet[*Conn]()
	partials := partial.NewStore()
	m := metrics.New()
	rec := &recorder{}
	sink := SinkFunc(func(c *Conn, msg string) {
		rec.OnMessage(c, msg)
		if msg == "quit" {
			_ = c.Close()
		}
	})
	r := NewReader(conns, partials, sink, DefaultConfig(), logger.NewNopLogger(), m)

	server, client := tcpPair(t)
	c := NewConn(1, server)
	conns.Add(1, c)
	m.ConnectionOpened()

	_, err := client.Write([]byte("a\nquit\nb\ntail"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r.Poll()
		return conns.Len() == 0
	}, 2*time.Second, 2*time.Millisecond)

	assert.Equal(t, []string{"a", "quit"}, rec.messages())
	assert.True(t, c.IsClosed())
	assert.Equal(t, 0, partials.Len())
	assert.Equal(t, int64(0), m.ActiveConnections())
	assert.Equal(t, int64(0), m.ErrorCount(), "a sink-initiated close is not a read error")
}

func TestReader_Run_stop(t *testing.T) {
	t.Run("RequestStop ends Run", func(t *testing.T) {
		f := newReaderFixture(DefaultConfig())
		errCh := make(chan error, 1)
		go func() { errCh <- f.reader.Run(context.Background()) }()

		require.Eventually(t, func() bool { return f.metrics.PollPasses() > 0 }, time.Second, time.Millisecond)
		assert.ErrorIs(t, f.reader.Run(context.Background()), ErrAlreadyRunning)

		f.reader.RequestStop()
		assert.True(t, f.reader.ShouldStop())
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("reader did not stop")
		}
	})

	t.Run("context cancel ends Run", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.IdleSleep = 0
		f := newReaderFixture(cfg)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- f.reader.Run(ctx) }()

		require.Eventually(t, func() bool { return f.metrics.PollPasses() > 0 }, time.Second, time.Millisecond)
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("reader ignored context cancellation")
		}
	})
}

func TestReader_retire_logs_connection_age(t *testing.T) {
	logs := &logBuffer{}
	conns := connset.NewSet[*Conn]()
	r := NewReader(conns, partial.NewStore(), &recorder{}, DefaultConfig(),
		logger.NewWriterLogger(logs, "linesrv", zerolog.DebugLevel), metrics.New())

	server, client := tcpPair(t)
	conns.Add(1, NewConn(1, server))
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		r.Poll()
		return conns.Len() == 0
	}, 2*time.Second, 2*time.Millisecond)

	closed := logs.entry(t, "connection closed")
	assert.Equal(t, "#1", closed["conn"])
	assert.NotEmpty(t, closed["age"])
	assert.Equal(t, "reader", closed["component"])
}
