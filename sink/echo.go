// Package sink provides message sinks for a linesrv.Server: the reference
// echo responder, fan-out, a cached stats command and a Redis publisher.
package sink

import (
	"github.com/cyberinferno/go-linesrv/linesrv"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/utils"
)

// EchoPrefix starts every echo reply.
const EchoPrefix = "You said: "

// Echo replies to each message with EchoPrefix, the trimmed message and a
// newline.
type Echo struct {
	logger logger.Logger
}

// NewEcho returns an Echo sink that logs failed replies to log.
func NewEcho(log logger.Logger) *Echo {
	return &Echo{logger: log}
}

// OnMessage implements linesrv.Sink.
func (e *Echo) OnMessage(c *linesrv.Conn, msg string) {
	if _, err := c.WriteString(EchoPrefix + utils.TrimMessage(msg) + "\n"); err != nil {
		e.logger.Warn("echo reply failed",
			logger.Field{Key: "conn", Value: c.ID().String()},
			logger.Field{Key: "error", Value: err},
		)
	}
}

// Chain delivers each message to every sink in order.
type Chain []linesrv.Sink

// OnMessage implements linesrv.Sink.
func (ch Chain) OnMessage(c *linesrv.Conn, msg string) {
	for _, s := range ch {
		if s != nil {
			s.OnMessage(c, msg)
		}
	}
}
