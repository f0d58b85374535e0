// Package config defines the runtime configuration for the linesrv binary
// and the helpers that turn it into a linesrv.Config.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cyberinferno/go-linesrv/linesrv"
	"github.com/cyberinferno/go-linesrv/logger"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every tuneable of one server process.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Host string
	Port int

	// ── Framing and polling ──────────────────────────────────────────
	Delimiter      byte
	AcceptTimeout  time.Duration
	IdleSleep      time.Duration
	ReadBufferSize int

	// ── Sinks ────────────────────────────────────────────────────────
	Echo         bool
	StatsCommand string // empty disables the stats command
	StatsTTL     time.Duration
	RedisAddr    string // empty disables publishing
	RedisChannel string
	RedisDB      int

	// ── Output ───────────────────────────────────────────────────────
	LogLevel string
	JSONLogs bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Delimiter:      DefaultDelimiter,
		AcceptTimeout:  DefaultAcceptTimeout,
		IdleSleep:      DefaultIdleSleep,
		ReadBufferSize: DefaultReadBufferSize,
		Echo:           true,
		StatsCommand:   DefaultStatsCommand,
		StatsTTL:       DefaultStatsTTL,
		RedisChannel:   DefaultRedisChannel,
		LogLevel:       DefaultLogLevel,
	}
}

// Address returns the "host:port" to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ServerConfig converts c into the core server configuration.
func (c *Config) ServerConfig() linesrv.Config {
	return linesrv.Config{
		Delimiter:      c.Delimiter,
		AcceptTimeout:  c.AcceptTimeout,
		IdleSleep:      c.IdleSleep,
		ReadBufferSize: c.ReadBufferSize,
	}
}

// Validate checks c for consistency.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.AcceptTimeout <= 0 {
		return fmt.Errorf("%w: accept timeout must be positive", ErrInvalid)
	}
	if c.IdleSleep < 0 {
		return fmt.Errorf("%w: idle sleep must not be negative", ErrInvalid)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: read buffer size must be positive", ErrInvalid)
	}
	if c.StatsCommand != "" && c.StatsTTL <= 0 {
		return fmt.Errorf("%w: stats ttl must be positive", ErrInvalid)
	}
	if c.RedisAddr != "" && c.RedisChannel == "" {
		return fmt.Errorf("%w: redis channel is required with a redis address", ErrInvalid)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ParseDelimiter accepts a single character, an escape such as "\n" or
// "\t", a hex byte such as "0x0a", or one of the names "nl", "cr", "tab",
// "nul".
func ParseDelimiter(s string) (byte, error) {
	switch s {
	case "\n", `\n`:
		return '\n', nil
	case "\r", `\r`:
		return '\r', nil
	case "\t", `\t`:
		return '\t', nil
	case `\0`:
		return 0, nil
	}

	switch strings.ToLower(s) {
	case "nl", "lf", "newline":
		return '\n', nil
	case "cr":
		return '\r', nil
	case "tab":
		return '\t', nil
	case "nul", "null":
		return 0, nil
	}

	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: delimiter %q is not a hex byte", ErrInvalid, s)
		}
		return byte(v), nil
	}

	if len(s) != 1 {
		return 0, fmt.Errorf("%w: delimiter %q must be a single byte", ErrInvalid, s)
	}
	return s[0], nil
}

// FormatDelimiter renders d the way ParseDelimiter accepts it.
func FormatDelimiter(d byte) string {
	switch d {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	}
	if d < ' ' || d > '~' {
		return fmt.Sprintf("0x%02x", d)
	}
	return string(d)
}
