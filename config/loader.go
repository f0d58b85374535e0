package config

// Precedence order (highest wins):
//   1. CLI flags  (cmd/linesrv)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Every supported env var uses the LINESRV_ prefix. Durations use
// time.ParseDuration syntax; booleans accept "1", "true", "yes", "0",
// "false", "no".

// LoadFromEnv overlays environment variables onto cfg. Only non-empty
// variables override the existing value. Malformed values are reported
// rather than ignored.
func LoadFromEnv(cfg *Config) error {
	if v, ok := lookup("LINESRV_HOST"); ok {
		cfg.Host = v
	}
	if err := envInt("LINESRV_PORT", &cfg.Port); err != nil {
		return err
	}
	if v, ok := lookup("LINESRV_DELIMITER"); ok {
		d, err := ParseDelimiter(v)
		if err != nil {
			return fmt.Errorf("LINESRV_DELIMITER: %w", err)
		}
		cfg.Delimiter = d
	}
	if err := envDuration("LINESRV_ACCEPT_TIMEOUT", &cfg.AcceptTimeout); err != nil {
		return err
	}
	if err := envDuration("LINESRV_IDLE_SLEEP", &cfg.IdleSleep); err != nil {
		return err
	}
	if err := envInt("LINESRV_READ_BUFFER", &cfg.ReadBufferSize); err != nil {
		return err
	}

	// Sinks
	if err := envBool("LINESRV_ECHO", &cfg.Echo); err != nil {
		return err
	}
	if v, ok := lookup("LINESRV_STATS_COMMAND"); ok {
		cfg.StatsCommand = v
	}
	if err := envDuration("LINESRV_STATS_TTL", &cfg.StatsTTL); err != nil {
		return err
	}
	if v, ok := lookup("LINESRV_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := lookup("LINESRV_REDIS_CHANNEL"); ok {
		cfg.RedisChannel = v
	}
	if err := envInt("LINESRV_REDIS_DB", &cfg.RedisDB); err != nil {
		return err
	}

	// Output
	if v, ok := lookup("LINESRV_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return envBool("LINESRV_LOG_JSON", &cfg.JSONLogs)
}

// ── helpers ──────────────────────────────────────────────────────────

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w: %q is not an integer", key, ErrInvalid, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w: %q is not a duration", key, ErrInvalid, v)
	}
	*dst = d
	return nil
}

func envBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	default:
		return fmt.Errorf("%s: %w: %q is not a boolean", key, ErrInvalid, v)
	}
	return nil
}
