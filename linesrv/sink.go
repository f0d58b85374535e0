package linesrv

// Sink receives every complete message. OnMessage runs on the read loop's
// goroutine, so it must not block for long: a slow sink stalls framing for
// every other connection. A panic inside OnMessage is recovered and logged
// by the read loop and does not stop delivery to other connections.
type Sink interface {
	OnMessage(c *Conn, msg string)
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(c *Conn, msg string)

// OnMessage implements Sink.
func (f SinkFunc) OnMessage(c *Conn, msg string) { f(c, msg) }
