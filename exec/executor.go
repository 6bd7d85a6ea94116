// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package exec defines the reference DAG run executor.

Executor runs registered workflows, step by step, and reports every finished
step back to the DAG run tracker through its callback URL. It can be used
in-process, as tracker.Signaler, or as a standalone service serving the
Airflow DAG trigger endpoint, so the tracker can talk to it through
airflow.Client.

Each DAG run is executed in a separate goroutine. The number of concurrently
executed DAG runs is limited by Config.MaxConcurrentRuns. A DAG run which is
still executing cannot be triggered again, once it's finished it can be
triggered again with the same id (the tracker does that after reset).
*/
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/docai/core/api"
	"github.com/docai/core/dag"
	"github.com/docai/core/ds"
	"github.com/docai/core/pace"
	"github.com/docai/core/payload"
	"github.com/docai/core/tracker"
)

var (
	ErrUnknownDag       = errors.New("unknown DAG")
	ErrAlreadyExecuting = errors.New("DAG run is already executing")
	ErrClosed           = errors.New("executor is closed")
)

// Executor executes DAG runs, each in a separate goroutine.
type Executor struct {
	workflows Workflows
	client    *tracker.Client
	config    Config
	logger    *slog.Logger

	running *ds.AsyncMap[string, time.Time]
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// Executor configuration.
type Config struct {
	// Maximum number of DAG runs executed at the same time.
	MaxConcurrentRuns int64

	// Number of attempts of delivering single callback.
	CallbackAttempts int

	// Creates pace of callback retries. When nil, linear backoff from 10ms
	// up to 1s is used.
	CallbackPace func() pace.Strategy

	// When true, remaining steps are executed after a step failed.
	ContinueOnFailure bool

	// Basic auth credentials expected on the trigger endpoint. Empty username
	// disables the check.
	Username string
	Password string
}

// DefaultConfig is a default Executor configuration.
var DefaultConfig Config = Config{
	MaxConcurrentRuns: 100,
	CallbackAttempts:  10,
}

// New creates new Executor. Callbacks are delivered with given tracker
// Client. When logger is nil, slog for stdout with WARN severity level is
// used.
func New(
	workflows Workflows, client *tracker.Client, config Config,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		opts := slog.HandlerOptions{Level: slog.LevelWarn}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &opts))
	}
	if config.MaxConcurrentRuns <= 0 {
		config.MaxConcurrentRuns = DefaultConfig.MaxConcurrentRuns
	}
	if config.CallbackPace == nil {
		config.CallbackPace = func() pace.Strategy {
			return pace.MustLinearBackoff(
				10*time.Millisecond, time.Second, 50*time.Millisecond, 2,
			)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		workflows: workflows,
		client:    client,
		config:    config,
		logger:    logger,
		running:   ds.NewAsyncMap[string, time.Time](),
		sem:       semaphore.NewWeighted(config.MaxConcurrentRuns),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Signal starts execution of given DAG run. It implements tracker.Signaler.
// Triggering DAG run which is still executing is a no-op.
func (e *Executor) Signal(_ context.Context, req tracker.StartRequest) error {
	err := e.Trigger(req)
	if errors.Is(err, ErrAlreadyExecuting) {
		e.logger.Info("DAG run is already executing", "runId", req.RunId)
		return nil
	}
	return err
}

// Trigger starts execution of given DAG run. Returns ErrUnknownDag when
// there is no workflow for the DAG and ErrAlreadyExecuting when DAG run of
// the same id is still executing.
func (e *Executor) Trigger(req tracker.StartRequest) error {
	if e.ctx.Err() != nil {
		return ErrClosed
	}
	steps, exists := e.workflows[dag.Id(req.DagName)]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownDag, req.DagName)
	}
	if req.CallbackUrl == "" {
		return errors.New("callback URL is empty")
	}
	if !e.running.AddIfAbsent(req.RunId, time.Now()) {
		return ErrAlreadyExecuting
	}
	e.wg.Add(1)
	go e.executeRun(req, steps)
	return nil
}

// Running returns number of DAG runs being executed or waiting for a free
// slot.
func (e *Executor) Running() int {
	return e.running.Len()
}

// Wait blocks until all triggered DAG runs are finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Close stops accepting new DAG runs, cancels context of executing steps and
// waits until all goroutines are finished.
func (e *Executor) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *Executor) executeRun(req tracker.StartRequest, steps []Step) {
	defer e.wg.Done()
	defer e.running.Delete(req.RunId)
	start := time.Now()

	if err := e.sem.Acquire(e.ctx, 1); err != nil {
		e.logger.Warn("DAG run not executed, executor is closing", "runId",
			req.RunId, "err", err)
		return
	}
	defer e.sem.Release(1)

	e.logger.Info("Start executing DAG run", "runId", req.RunId, "tenant",
		req.Tenant, "dagName", req.DagName)
	results := make(map[string]payload.Value, len(steps))
	for _, step := range steps {
		in := StepInput{
			RunId:   req.RunId,
			Tenant:  req.Tenant,
			DagName: req.DagName,
			Params:  req.Params,
			Results: results,
		}
		result, stepErr := e.executeStep(step, in)
		content := stepContent(result, stepErr)
		results[step.TaskName] = result

		if err := e.sendCallback(req, step, content); err != nil {
			e.logger.Error("Cannot deliver task status to the tracker",
				"runId", req.RunId, "taskName", step.TaskName, "err", err)
			return
		}
		if stepErr != nil && !e.config.ContinueOnFailure {
			e.logger.Warn("DAG run stopped after failed step", "runId",
				req.RunId, "taskName", step.TaskName, "err", stepErr)
			return
		}
	}
	e.logger.Info("Finished executing DAG run", "runId", req.RunId,
		"duration", time.Since(start))
}

func (e *Executor) executeStep(step Step, in StepInput) (result payload.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic:", "runId", in.RunId,
				"taskName", step.TaskName, "err", r, "stack",
				string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	start := time.Now()
	result, err = step.Run(e.ctx, in)
	e.logger.Debug("Step finished", "runId", in.RunId, "taskName",
		step.TaskName, "err", err, "duration", time.Since(start))
	return result, err
}

func (e *Executor) sendCallback(req tracker.StartRequest, step Step, content payload.Value) error {
	in := api.TaskStatusUpdateInput{
		TaskName: step.TaskName,
		Content:  content,
	}
	if step.Function != "" {
		fn := step.Function
		in.Function = &fn
	}
	return pace.Retry(e.ctx, e.config.CallbackPace(), e.config.CallbackAttempts,
		func() error {
			_, err := e.client.PostCallback(e.ctx, req.CallbackUrl, in)
			var cErr *tracker.ClientError
			if errors.As(err, &cErr) && cErr.StatusCode < 500 {
				return pace.Permanent(err)
			}
			return err
		},
		func(err error, next time.Duration) {
			e.logger.Warn("Callback failed, retrying", "runId", req.RunId,
				"taskName", step.TaskName, "next", next, "err", err)
		},
	)
}

// stepContent builds task status content reported to the tracker.
func stepContent(result payload.Value, err error) payload.Value {
	if err != nil {
		return payload.MapValue(map[string]payload.Value{
			"ok":    payload.BoolValue(false),
			"error": payload.StringValue(err.Error()),
		})
	}
	return payload.MapValue(map[string]payload.Value{
		"ok":     payload.BoolValue(true),
		"result": result,
	})
}
