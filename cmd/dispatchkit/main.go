package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// overridden during build with ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Results go to stdout; logs and errors go to stderr so MCP JSON-RPC on
	// stdout stays clean.
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
