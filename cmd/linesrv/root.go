package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/cyberinferno/go-linesrv/config"
	"github.com/cyberinferno/go-linesrv/linesrv"
	"github.com/cyberinferno/go-linesrv/logger"
	"github.com/cyberinferno/go-linesrv/metrics"
	"github.com/cyberinferno/go-linesrv/sink"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

const serviceName = "linesrv"

// execute parses args over the environment and defaults, then serves until
// ctx is cancelled.
func execute(ctx context.Context, args []string, stdout io.Writer) error {
	cfg := config.Default()
	if err := config.LoadFromEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stdout)

	// ── listener ─────────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Address to bind (empty for all interfaces)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "TCP port to listen on")

	// ── framing ──────────────────────────────────────────────────
	delimiter := fs.StringP("delimiter", "d", config.FormatDelimiter(cfg.Delimiter), `Message delimiter: a character, "\n", "nl" or "0x0a"`)
	fs.DurationVar(&cfg.AcceptTimeout, "accept-timeout", cfg.AcceptTimeout, "Upper bound on one blocking accept")
	fs.DurationVar(&cfg.IdleSleep, "idle-sleep", cfg.IdleSleep, "Pause after a poll pass that read nothing")
	fs.IntVar(&cfg.ReadBufferSize, "read-buffer", cfg.ReadBufferSize, "Bytes per socket read")

	// ── sinks ────────────────────────────────────────────────────
	fs.BoolVar(&cfg.Echo, "echo", cfg.Echo, `Reply "You said: <msg>" to every message`)
	fs.StringVar(&cfg.StatsCommand, "stats-command", cfg.StatsCommand, "Message answered with a metrics snapshot (empty disables)")
	fs.DurationVar(&cfg.StatsTTL, "stats-ttl", cfg.StatsTTL, "How long a metrics snapshot is reused")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Publish every message to this Redis server")
	fs.StringVar(&cfg.RedisChannel, "redis-channel", cfg.RedisChannel, "Redis channel for published messages")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")

	// ── output ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "Minimum log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.JSONLogs, "log-json", cfg.JSONLogs, "Write JSON logs instead of console output")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration, print it and exit")

	fs.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s [flags]\n\nFlags:\n%s", serviceName, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		fs.Usage()
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "%s %s\n", serviceName, version)
		return nil
	}

	if fs.Changed("delimiter") {
		d, err := config.ParseDelimiter(*delimiter)
		if err != nil {
			return err
		}
		cfg.Delimiter = d
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if dryRun {
		printConfig(stdout, cfg)
		return nil
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	srv, cleanup, err := newServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("starting server",
		logger.Field{Key: "address", Value: cfg.Address()},
		logger.Field{Key: "delimiter", Value: config.FormatDelimiter(cfg.Delimiter)},
		logger.Field{Key: "version", Value: version},
	)

	return srv.ListenAndServe(ctx, cfg.Address())
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.JSONLogs {
		return logger.NewWriterLogger(os.Stderr, serviceName, lvl), nil
	}
	return logger.NewConsoleLogger(serviceName, lvl), nil
}

// newServer assembles the sink pipeline and the server. The returned
// cleanup releases external clients and must run after the server stops.
func newServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*linesrv.Server, func(), error) {
	m := metrics.New()
	cleanup := func() {}

	var chain sink.Chain
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		cleanup = func() { _ = client.Close() }

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable, publishing will be retried per message",
				logger.Field{Key: "addr", Value: cfg.RedisAddr},
				logger.Field{Key: "error", Value: err},
			)
		}
		cancel()

		chain = append(chain, sink.NewRedisPublisher(client, cfg.RedisChannel, 0, log.With(logger.Field{Key: "sink", Value: "redis"})))
	}
	if cfg.Echo {
		chain = append(chain, sink.NewEcho(log.With(logger.Field{Key: "sink", Value: "echo"})))
	}

	var s linesrv.Sink = chain
	if len(chain) == 0 {
		s = linesrv.SinkFunc(func(c *linesrv.Conn, msg string) {
			log.Debug("message", logger.Field{Key: "conn", Value: c.ID().String()}, logger.Field{Key: "message", Value: msg})
		})
	}
	if cfg.StatsCommand != "" {
		s = sink.NewStats(m, s, cfg.StatsCommand, cfg.StatsTTL, log.With(logger.Field{Key: "sink", Value: "stats"}))
	}

	srv, err := linesrv.New(cfg.ServerConfig(), s, linesrv.WithLogger(log), linesrv.WithMetrics(m))
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return srv, cleanup, nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "address         %s\n", cfg.Address())
	fmt.Fprintf(w, "delimiter       %s\n", config.FormatDelimiter(cfg.Delimiter))
	fmt.Fprintf(w, "accept-timeout  %s\n", cfg.AcceptTimeout)
	fmt.Fprintf(w, "idle-sleep      %s\n", cfg.IdleSleep)
	fmt.Fprintf(w, "read-buffer     %d\n", cfg.ReadBufferSize)
	fmt.Fprintf(w, "echo            %t\n", cfg.Echo)
	fmt.Fprintf(w, "stats-command   %q\n", cfg.StatsCommand)
	fmt.Fprintf(w, "redis-addr      %q\n", cfg.RedisAddr)
	fmt.Fprintf(w, "log-level       %s\n", cfg.LogLevel)
}
