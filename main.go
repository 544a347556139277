package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/itchlabs/itch/cmd"
)

// main is the entry point for the itch CLI. A signal-aware context lets an
// interrupt cancel in-flight browser waits and shut the pipeline down
// cleanly instead of orphaning Chrome processes.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
