package sink

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-linesrv/connid"
	"github.com/cyberinferno/go-linesrv/linesrv"
)

// newTestConn wraps the server side of a loopback pair and returns a reader
// for whatever the sink writes back.
func newTestConn(t *testing.T, id connid.ID) (*linesrv.Conn, *bufio.Reader, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, ok := <-accepted
	require.True(t, ok)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))

	return linesrv.NewConn(id, server), bufio.NewReader(client), client
}

type captured struct {
	conn connid.ID
	msg  string
}

type captureSink struct {
	got []captured
}

func (s *captureSink) OnMessage(c *linesrv.Conn, msg string) {
	s.got = append(s.got, captured{conn: c.ID(), msg: msg})
}
