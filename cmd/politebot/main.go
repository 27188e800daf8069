package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/rohmanhakim/politebot/internal/cli"
)

func main() {
	// Canceling the context aborts pending delays and in-flight requests.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx)
}
