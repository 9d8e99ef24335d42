package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// cancel the root context on SIGINT/SIGTERM so dispatch loops and the
	// HTTP server all wind down together
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := run(ctx); err != nil {
		os.Exit(1)
	}
}
