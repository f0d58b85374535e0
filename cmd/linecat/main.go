// Command linecat sends stdin to a line server one line at a time and
// prints every line the server sends back.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/cyberinferno/go-linesrv/config"
	"github.com/cyberinferno/go-linesrv/lineclient"
	"github.com/cyberinferno/go-linesrv/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "linecat: %v\n", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("linecat", flag.ContinueOnError)
	fs.SetOutput(stdout)

	delimiter := fs.StringP("delimiter", "d", `\n`, "Line delimiter")
	dialTimeout := fs.Duration("timeout", 10*time.Second, "Dial timeout")
	linger := fs.Duration("linger", time.Second, "How long to wait for replies after stdin ends")
	logLevel := fs.String("log-level", "warn", "Minimum log level")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: linecat [flags] host:port")
	}

	delim, err := config.ParseDelimiter(*delimiter)
	if err != nil {
		return err
	}
	lvl, err := logger.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	log := logger.NewConsoleLogger("linecat", lvl)
	defer log.Close()

	cfg := lineclient.DefaultConfig(fs.Arg(0))
	cfg.Delimiter = delim
	cfg.ConnectionTimeout = *dialTimeout

	client := lineclient.New(cfg)
	defer client.Close()

	var outMu sync.Mutex
	disconnected := make(chan struct{})
	var once sync.Once

	client.OnLine(func(ev lineclient.LineEvent) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(stdout, ev.Line)
	})
	client.OnConnectionState(func(ev lineclient.ConnectionStateEvent) {
		log.Debug("connection state", logger.Field{Key: "state", Value: ev.State.String()})
		if ev.State == lineclient.Disconnected {
			once.Do(func() { close(disconnected) })
		}
	})
	client.OnError(func(ev lineclient.ErrorEvent) {
		log.Warn("connection error", logger.Field{Key: "error", Value: ev.Error})
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}

	sendErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if err := client.SendLine(scanner.Text()); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-disconnected:
		return nil
	case err := <-sendErr:
		if err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
	case <-disconnected:
	case <-time.After(*linger):
	}
	return nil
}
