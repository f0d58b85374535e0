package config

import "time"

// Defaults shared by CLI flags and environment loading.
const (
	// DefaultHost binds every interface.
	DefaultHost = ""

	// DefaultPort is the reference deployment's listen port.
	DefaultPort = 48321

	// DefaultDelimiter terminates each message.
	DefaultDelimiter byte = '\n'

	// DefaultAcceptTimeout bounds one blocking accept, and therefore how
	// long a stop request can go unnoticed.
	DefaultAcceptTimeout = 10 * time.Second

	// DefaultIdleSleep is the pause after a poll pass that read nothing.
	DefaultIdleSleep = time.Millisecond

	// DefaultReadBufferSize is the per-read chunk size.
	DefaultReadBufferSize = 4096

	// DefaultRedisChannel is used when Redis publishing is enabled
	// without an explicit channel.
	DefaultRedisChannel = "linesrv:messages"

	// DefaultStatsCommand is the message answered with a metrics snapshot.
	DefaultStatsCommand = "/stats"

	// DefaultStatsTTL is how long a rendered snapshot is reused.
	DefaultStatsTTL = time.Second

	// DefaultLogLevel is the minimum level written to the log.
	DefaultLogLevel = "info"
)
