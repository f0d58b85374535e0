// Command linesrv runs a delimiter-framed TCP line server that answers each
// message with an echo, serves a stats command and can mirror traffic to a
// Redis channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "linesrv: %v\n", err)
		os.Exit(1)
	}
}
