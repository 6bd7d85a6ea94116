// Program dagrund runs the DAG run tracker HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg, err := ParseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err.Error())
		os.Exit(2)
	}
	logger := cfg.newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Tracker stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("Tracker stopped")
}
