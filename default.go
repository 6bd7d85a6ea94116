// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package core wires the DAG run tracker together with the reference
// executor for simple setups, examples and tests.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/docai/core/auth"
	"github.com/docai/core/db"
	"github.com/docai/core/exec"
	"github.com/docai/core/tracker"
)

// InProcess is the tracker with the reference executor signalled directly,
// without going through Airflow API.
type InProcess struct {
	Tracker  *tracker.Tracker
	Executor *exec.Executor
}

// NewInProcess creates tracker on given database and executor running given
// workflows. Workflow steps are declared as DAG tasks in the tracker
// catalog. The executor posts callbacks onto trackerUrl, which has to be the
// URL the tracker handler is served on.
func NewInProcess(
	dbClient *db.Client, workflows exec.Workflows, trackerUrl string,
	trackerCfg tracker.Config, execCfg exec.Config, logger *slog.Logger,
) InProcess {
	trackerCfg.CallbackBaseUrl = trackerUrl
	clientCfg := tracker.DefaultClientConfig
	clientCfg.CallbackToken = trackerCfg.CallbackToken
	executor := exec.New(
		workflows, tracker.NewClient(trackerUrl, nil, logger, clientCfg),
		execCfg, logger,
	)
	t := tracker.New(
		tracker.NewDbRegistry(dbClient, logger), executor,
		workflows.Catalog(), trackerCfg, logger, nil, nil,
	)
	return InProcess{Tracker: t, Executor: executor}
}

// DefaultStarted setups tracker on SQLite database file and in-process
// executor, then serves the tracker HTTP API on given port until ctx is
// done.
func DefaultStarted(ctx context.Context, workflows exec.Workflows, port int, jwtSecret []byte) error {
	const dbFile = "dagruns.db"
	logger := slog.Default()
	dbClient, err := db.NewSqliteClient(dbFile, logger)
	if err != nil {
		return fmt.Errorf("cannot create SQLite database: %w", err)
	}
	defer dbClient.Close()

	trackerUrl := fmt.Sprintf("http://localhost:%d", port)
	ip := NewInProcess(dbClient, workflows, trackerUrl, tracker.DefaultConfig,
		exec.DefaultConfig, logger)
	defer ip.Executor.Close()

	authn := auth.NewAuthenticator(jwtSecret, "", 24*time.Hour)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           ip.Tracker.Handler(authn, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
