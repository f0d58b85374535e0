package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_overrides(t *testing.T) {
	t.Setenv("LINESRV_HOST", "127.0.0.1")
	t.Setenv("LINESRV_PORT", "8080")
	t.Setenv("LINESRV_DELIMITER", "0x00")
	t.Setenv("LINESRV_ACCEPT_TIMEOUT", "250ms")
	t.Setenv("LINESRV_IDLE_SLEEP", "0s")
	t.Setenv("LINESRV_READ_BUFFER", "128")
	t.Setenv("LINESRV_ECHO", "no")
	t.Setenv("LINESRV_STATS_COMMAND", "!stats")
	t.Setenv("LINESRV_STATS_TTL", "5s")
	t.Setenv("LINESRV_REDIS_ADDR", "redis:6379")
	t.Setenv("LINESRV_REDIS_CHANNEL", "lines")
	t.Setenv("LINESRV_REDIS_DB", "2")
	t.Setenv("LINESRV_LOG_LEVEL", "debug")
	t.Setenv("LINESRV_LOG_JSON", "true")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))

	assert.Equal(t, &Config{
		Host:           "127.0.0.1",
		Port:           8080,
		Delimiter:      0,
		AcceptTimeout:  250 * time.Millisecond,
		IdleSleep:      0,
		ReadBufferSize: 128,
		Echo:           false,
		StatsCommand:   "!stats",
		StatsTTL:       5 * time.Second,
		RedisAddr:      "redis:6379",
		RedisChannel:   "lines",
		RedisDB:        2,
		LogLevel:       "debug",
		JSONLogs:       true,
	}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_empty_keeps_defaults(t *testing.T) {
	t.Setenv("LINESRV_PORT", "")
	t.Setenv("LINESRV_HOST", "   ")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv_malformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"LINESRV_PORT", "eighty"},
		{"LINESRV_DELIMITER", "too long"},
		{"LINESRV_ACCEPT_TIMEOUT", "10"},
		{"LINESRV_ECHO", "maybe"},
		{"LINESRV_REDIS_DB", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			err := LoadFromEnv(Default())
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
