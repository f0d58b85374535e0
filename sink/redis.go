package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/go-linesrv/linesrv"
	"github.com/cyberinferno/go-linesrv/logger"
)

// DefaultPublishTimeout bounds one PUBLISH so a slow Redis cannot stall the
// read loop for long.
const DefaultPublishTimeout = 500 * time.Millisecond

// Publisher is the subset of *redis.Client used by RedisPublisher.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Event is the JSON payload published for every message.
type Event struct {
	Conn    uint64    `json:"conn"`
	Remote  string    `json:"remote"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RedisPublisher forwards every message to a Redis pub/sub channel.
// Publishing failures are logged and otherwise ignored.
type RedisPublisher struct {
	client  Publisher
	channel string
	timeout time.Duration
	logger  logger.Logger
}

// NewRedisPublisher creates a RedisPublisher. A zero timeout means
// DefaultPublishTimeout.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	pub := sink.NewRedisPublisher(client, "linesrv:messages", 0, log)
func NewRedisPublisher(client Publisher, channel string, timeout time.Duration, log logger.Logger) *RedisPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: timeout,
		logger:  log,
	}
}

// OnMessage implements linesrv.Sink.
func (p *RedisPublisher) OnMessage(c *linesrv.Conn, msg string) {
	data, err := json.Marshal(Event{
		Conn:    uint64(c.ID()),
		Remote:  c.RemoteAddr(),
		Message: msg,
		At:      time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("failed to encode message event", logger.Field{Key: "error", Value: err})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("redis publish failed",
			logger.Field{Key: "conn", Value: c.ID().String()},
			logger.Field{Key: "channel", Value: p.channel},
			logger.Field{Key: "error", Value: err},
		)
	}
}
