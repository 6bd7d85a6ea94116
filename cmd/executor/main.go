// Program executor runs the reference executor with sample document
// workflows behind Airflow compatible trigger endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docai/core/exec"
	"github.com/docai/core/tracker"
)

func main() {
	cfg := ParseConfig()
	logger := cfg.setupLogger()

	clientCfg := tracker.DefaultClientConfig
	clientCfg.CallbackToken = cfg.CallbackToken
	// Callbacks carry full URLs, so base URL of the client is not used.
	client := tracker.NewClient("", nil, logger, clientCfg)

	execCfg := exec.DefaultConfig
	execCfg.MaxConcurrentRuns = cfg.MaxConcurrentRuns
	execCfg.ContinueOnFailure = cfg.ContinueOnFailure
	execCfg.Username = cfg.Username
	execCfg.Password = cfg.Password
	executor := exec.New(sampleWorkflows(), client, execCfg, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           executor.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Start executor", "port", cfg.Port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Cannot start the server", "err", err)
		os.Exit(1)
	}
	executor.Close()
}
