// Command thoughtctl drives the thought store from a terminal: generate,
// browse, favorite, migrate and watch live changes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildFromConfig).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
