package sink

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/cyberinferno/go-linesrv/linesrv"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/metrics"
	"github.com/cyberinferno/go-linesrv/utils"
)

const (
	// DefaultStatsCommand is the message that triggers a stats reply.
	DefaultStatsCommand = "/stats"
	// DefaultStatsTTL is how long a rendered snapshot is reused.
	DefaultStatsTTL = time.Second

	statsKey = "snapshot"
)

// Stats answers a command message with the server's metrics as one JSON
// line and forwards every other message to Next. The rendered snapshot is
// cached for the TTL and rendered at most once per expiry, however many
// clients ask at the same time.
type Stats struct {
	command string
	ttl     time.Duration
	metrics *metrics.Collector
	next    linesrv.Sink
	logger  logger.Logger

	cache *cache.Cache
	group singleflight.Group
}

// NewStats creates a Stats sink.
//
// Parameters:
//   - m: The collector to report
//   - next: Sink for non-command messages; may be nil
//   - command: The trigger message; empty means DefaultStatsCommand
//   - ttl: Snapshot cache lifetime; zero or less means DefaultStatsTTL
//   - log: Logger for failed replies
//
// Returns:
//   - A new Stats sink
func NewStats(m *metrics.Collector, next linesrv.Sink, command string, ttl time.Duration, log logger.Logger) *Stats {
	if command == "" {
		command = DefaultStatsCommand
	}

	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}

	return &Stats{
		command: command,
		ttl:     ttl,
		metrics: m,
		next:    next,
		logger:  log,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// OnMessage implements linesrv.Sink.
func (s *Stats) OnMessage(c *linesrv.Conn, msg string) {
	if utils.TrimMessage(msg) != s.command {
		if s.next != nil {
			s.next.OnMessage(c, msg)
		}
		return
	}

	if _, err := c.WriteString(s.snapshot() + "\n"); err != nil {
		s.logger.Warn("stats reply failed",
			logger.Field{Key: "conn", Value: c.ID().String()},
			logger.Field{Key: "error", Value: err},
		)
	}
}

// snapshot returns the cached JSON snapshot, rendering it on a miss.
func (s *Stats) snapshot() string {
	if v, found := s.cache.Get(statsKey); found {
		return v.(string)
	}

	v, _, _ := s.group.Do(statsKey, func() (interface{}, error) {
		if cached, found := s.cache.Get(statsKey); found {
			return cached, nil
		}

		js := s.metrics.JSON()
		s.cache.Set(statsKey, js, s.ttl)
		return js, nil
	})

	return v.(string)
}
