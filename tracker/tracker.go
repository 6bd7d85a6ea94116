// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package tracker provides the DAG run tracker: service which creates DAG runs,
signals the external executor to start them and merges task status callbacks
posted back by the executor.

# Introduction

Tracker connects all other components together. DAG runs are persisted in a
Registry (DbRegistry by default), the executor is reached through a Signaler
(for example airflow.Client) and the overall status of a DAG run is decided by
dagrun.Policy based on DAG definitions from dag.Catalog.

Every operation takes tenant explicitly. Operations which modify a DAG run
are serialized per DAG run, so callbacks of the same DAG run are applied one
by one, while different DAG runs never block each other.

# HTTP

Tracker.Handler returns http.Handler with all endpoints defined in
api.Routes. Client is the Go client of those endpoints.
*/
package tracker

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docai/core/api"
	"github.com/docai/core/auth"
	"github.com/docai/core/dag"
	"github.com/docai/core/dagrun"
	"github.com/docai/core/ds"
	"github.com/docai/core/metrics"
	"github.com/docai/core/notify"
	"github.com/docai/core/payload"
	"github.com/docai/core/timeutils"
)

// Tracker keeps track of DAG runs and their statuses.
type Tracker struct {
	registry Registry
	signaler Signaler
	catalog  dag.Catalog
	config   Config
	logger   *slog.Logger
	notifier notify.Sender
	metrics  *metrics.Metrics

	policy     dagrun.Policy
	notifyTmpl notify.Template
	locks      *ds.KeyedMutex[string]
	finished   ds.Cache[string, finishedRun]
	now        func() time.Time
}

type finishedRun struct {
	ownerId  string
	status   dag.RunStatus
	accepted bool
}

// New creates new Tracker. Registry and Signaler are required. When catalog
// is nil, no DAG declares any task, so DAG runs never complete on their own.
// When logger or notifier are nil, default logger and notify.LogsErr are
// used. Metrics can be nil.
func New(
	registry Registry, signaler Signaler, catalog dag.Catalog, config Config,
	logger *slog.Logger, notifier notify.Sender, m *metrics.Metrics,
) *Tracker {
	if logger == nil {
		logger = defaultLogger()
	}
	if notifier == nil {
		notifier = notify.NewLogsErr(logger)
	}
	if catalog == nil {
		catalog = dag.Registry{}
	}
	policy := config.Policy
	if policy == nil {
		policy = dagrun.DefaultPolicy()
	}
	tmpl := config.NotifyTemplate
	if tmpl == nil {
		tmpl = notify.DefaultTemplate
	}
	var finished ds.Cache[string, finishedRun]
	if config.FinishedCacheLen > 0 {
		finished = ds.NewLruCache[string, finishedRun](config.FinishedCacheLen)
	}
	return &Tracker{
		registry:   registry,
		signaler:   signaler,
		catalog:    catalog,
		config:     config,
		logger:     logger,
		notifier:   notifier,
		metrics:    m,
		policy:     policy,
		notifyTmpl: tmpl,
		locks:      ds.NewKeyedMutex[string](),
		finished:   finished,
		now:        timeutils.Now,
	}
}

// CreateParams contains input for creating new DAG run.
type CreateParams struct {
	Tenant    string
	Owner     dagrun.Owner
	DagName   string
	Params    payload.Value
	ChatbotId *string

	// When true, DAG run is only persisted in pending status.
	SkipStart bool
}

// Create creates new DAG run. Unless SkipStart is set, DAG run is then reset
// and started. When starting fails, the created DAG run is returned together
// with the error and it stays pending and not accepted.
func (t *Tracker) Create(ctx context.Context, p CreateParams) (*dagrun.DagRun, error) {
	start := time.Now()
	run, err := dagrun.New(dagrun.NewParams{
		Id:        uuid.NewString(),
		Tenant:    p.Tenant,
		Owner:     p.Owner,
		DagName:   p.DagName,
		Params:    p.Params,
		ChatbotId: p.ChatbotId,
		Now:       t.now(),
	})
	if err != nil {
		return nil, err
	}
	if t.config.RequireKnownDag {
		if _, known := t.catalog.Lookup(run.DagName); !known {
			return nil, dagrun.Validationf("create", "unknown DAG %s",
				run.DagName)
		}
	}
	if err := t.registry.Create(ctx, run); err != nil {
		t.logger.Error("Cannot create DAG run", "tenant", p.Tenant, "dagName",
			run.DagName, "err", err)
		return nil, err
	}
	t.metrics.DagRunCreated(string(run.DagName))
	t.logger.Info("New DAG run created", "tenant", run.Tenant, "runId",
		run.Id, "dagName", run.DagName, "ownerId", run.Owner.Id, "duration",
		time.Since(start))
	if p.SkipStart {
		return run, nil
	}

	if _, err := t.Reset(ctx, run.Tenant, run.Id); err != nil {
		return run, err
	}
	started, sErr := t.Start(ctx, run.Tenant, run.Id)
	if sErr != nil {
		return run, sErr
	}
	return started, nil
}

// Start signals the executor to start given DAG run and marks it as
// accepted. When DAG run is already accepted, it's a no-op. When signalling
// fails, nothing is changed and ErrExecutorSignal error is returned. The
// per-run lock is held during signalling, so callbacks of this DAG run wait
// until acceptance is persisted.
func (t *Tracker) Start(ctx context.Context, tenant, runId string) (*dagrun.DagRun, error) {
	const op = "start"
	start := time.Now()
	unlock := t.locks.Lock(lockKey(tenant, runId))
	defer unlock()

	run, err := t.registry.FindById(ctx, tenant, runId)
	if err != nil {
		return nil, err
	}
	if run.Accepted() {
		t.logger.Debug("DAG run already accepted, skipping start", "tenant",
			tenant, "runId", runId)
		return run, nil
	}

	req := StartRequest{
		RunId:       run.Id,
		Tenant:      run.Tenant,
		DagName:     string(run.DagName),
		Params:      run.Params,
		CallbackUrl: t.callbackUrl(tenant, runId),
	}
	sigErr := t.signaler.Signal(ctx, req)
	t.metrics.ExecutorSignalled(sigErr)
	if sigErr != nil {
		t.logger.Error("Cannot signal the executor", "tenant", tenant,
			"runId", runId, "dagName", run.DagName, "err", sigErr)
		return run, dagrun.ExecutorSignal(op, sigErr)
	}

	var prev dag.RunStatus
	updated, uErr := t.registry.Update(ctx, tenant, runId, func(r *dagrun.DagRun) error {
		prev = r.Status()
		if r.Accepted() {
			return nil
		}
		r.MarkStarted(t.policy, t.declaredTasks(r.DagName), t.now())
		return nil
	})
	if uErr != nil {
		t.logger.Error("Executor accepted DAG run, but it cannot be marked "+
			"as accepted", "tenant", tenant, "runId", runId, "err", uErr)
		return nil, uErr
	}
	t.afterUpdate(ctx, updated, prev, nil)
	t.logger.Info("DAG run started", "tenant", tenant, "runId", runId,
		"status", updated.Status().String(), "duration", time.Since(start))
	return updated, nil
}

// Reset brings DAG run back to pending status with empty status stack. DAG
// runs in running status cannot be reset (ErrInvalidState).
func (t *Tracker) Reset(ctx context.Context, tenant, runId string) (*dagrun.DagRun, error) {
	unlock := t.locks.Lock(lockKey(tenant, runId))
	defer unlock()

	var prev dag.RunStatus
	updated, err := t.registry.Update(ctx, tenant, runId, func(r *dagrun.DagRun) error {
		prev = r.Status()
		return r.ResetWorkflow(t.now())
	})
	if err != nil {
		return nil, err
	}
	if t.finished != nil {
		t.finished.Remove(lockKey(tenant, runId))
	}
	t.metrics.StatusChanged(prev.String(), updated.Status().String())
	t.logger.Debug("DAG run reset", "tenant", tenant, "runId", runId,
		"prevStatus", prev.String())
	return updated, nil
}

// TaskUpdate is a single task status report of the executor.
type TaskUpdate struct {
	TaskName string
	Content  payload.Value
	Function string
}

// RecordTaskUpdate merges task status report into DAG run status stack and
// recomputes its status. Reports are accepted regardless of DAG run status.
func (t *Tracker) RecordTaskUpdate(ctx context.Context, tenant, runId string, u TaskUpdate) (*dagrun.DagRun, error) {
	const op = "record_task_update"
	start := time.Now()
	if strings.TrimSpace(u.TaskName) == "" {
		return nil, dagrun.Validationf(op, "task name is empty")
	}
	unlock := t.locks.Lock(lockKey(tenant, runId))
	defer unlock()

	var prev dag.RunStatus
	updated, err := t.registry.Update(ctx, tenant, runId, func(r *dagrun.DagRun) error {
		prev = r.Status()
		entry := dagrun.TaskStatusEntry{
			TaskName:   u.TaskName,
			Content:    u.Content,
			Function:   u.Function,
			ReceivedAt: t.now(),
		}
		r.RecordTaskUpdate(entry, t.policy, t.declaredTasks(r.DagName))
		return nil
	})
	if err != nil {
		t.logger.Warn("Cannot record task update", "tenant", tenant, "runId",
			runId, "taskName", u.TaskName, "err", err)
		return nil, err
	}
	t.metrics.TaskUpdated(string(updated.DagName), time.Since(start))
	taskName := u.TaskName
	t.afterUpdate(ctx, updated, prev, &taskName)
	t.logger.Debug("Task update recorded", "tenant", tenant, "runId", runId,
		"taskName", u.TaskName, "status", updated.Status().String(),
		"duration", time.Since(start))
	return updated, nil
}

// Get returns DAG run with its status stack.
func (t *Tracker) Get(ctx context.Context, tenant, runId string) (*dagrun.DagRun, error) {
	return t.registry.FindById(ctx, tenant, runId)
}

// List returns DAG runs of given owner, the most recent first, limited by
// Config.ListLimit.
func (t *Tracker) List(ctx context.Context, tenant, ownerId string) ([]*dagrun.DagRun, error) {
	return t.registry.ListByOwner(ctx, tenant, ownerId, t.config.ListLimit)
}

// FinishCheck is the result of CheckFinished.
type FinishCheck struct {
	RunId    string
	OwnerId  string
	Status   dag.RunStatus
	Accepted bool
	Finished bool
}

// CheckFinished reports whether DAG run is finished. Finished statuses are
// cached. Cache entries are written and removed only under the per-run lock,
// so a concurrent Reset cannot be overwritten by a stale read.
func (t *Tracker) CheckFinished(ctx context.Context, tenant, runId string) (FinishCheck, error) {
	key := lockKey(tenant, runId)
	if t.finished != nil {
		if fr, ok := t.finished.Get(key); ok {
			return FinishCheck{
				RunId: runId, OwnerId: fr.ownerId, Status: fr.status,
				Accepted: fr.accepted, Finished: true,
			}, nil
		}
	}
	unlock := t.locks.Lock(key)
	defer unlock()
	run, err := t.registry.FindById(ctx, tenant, runId)
	if err != nil {
		return FinishCheck{}, err
	}
	finished := run.CheckStatusFinish()
	if finished && t.finished != nil {
		t.finished.Put(key, finishedRun{
			ownerId: run.Owner.Id, status: run.Status(),
			accepted: run.Accepted(),
		})
	}
	return FinishCheck{
		RunId:    runId,
		OwnerId:  run.Owner.Id,
		Status:   run.Status(),
		Accepted: run.Accepted(),
		Finished: finished,
	}, nil
}

// Stats counts DAG runs of given tenant by status. All statuses are present
// in the result.
func (t *Tracker) Stats(ctx context.Context, tenant string) (map[dag.RunStatus]int, error) {
	counts, err := t.registry.CountByStatus(ctx, tenant)
	if err != nil {
		return nil, err
	}
	result := make(map[dag.RunStatus]int, len(dag.RunStatuses()))
	for _, status := range dag.RunStatuses() {
		result[status] = counts[status]
	}
	return result, nil
}

func (t *Tracker) afterUpdate(ctx context.Context, run *dagrun.DagRun, prev dag.RunStatus, taskName *string) {
	status := run.Status()
	if status == prev {
		return
	}
	t.metrics.StatusChanged(prev.String(), status.String())
	t.logger.Info("DAG run status changed", "tenant", run.Tenant, "runId",
		run.Id, "from", prev.String(), "to", status.String())
	if status.IsTerminal() && t.finished != nil {
		t.finished.Put(lockKey(run.Tenant, run.Id), finishedRun{
			ownerId: run.Owner.Id, status: status,
			accepted: run.Accepted(),
		})
	}
	if status.IsFailure() {
		t.sendNotification(ctx, run, prev, taskName)
	}
}

func (t *Tracker) sendNotification(ctx context.Context, run *dagrun.DagRun, prev dag.RunStatus, taskName *string) {
	data := notify.MsgData{
		RunId:      run.Id,
		Tenant:     run.Tenant,
		DagName:    string(run.DagName),
		TaskName:   taskName,
		PrevStatus: prev.String(),
		Status:     run.Status().String(),
		UpdatedAt:  timeutils.ToString(run.UpdatedAt),
	}
	if taskName != nil {
		if entry, ok := run.FindTaskStatus(*taskName); ok {
			data.Details = map[string]any{"content": entry.Content.Any()}
		}
	}
	if err := t.notifier.Send(ctx, t.notifyTmpl, data); err != nil {
		t.logger.Error("Cannot send notification about failed DAG run",
			"tenant", run.Tenant, "runId", run.Id, "err", err)
	}
}

func (t *Tracker) declaredTasks(dagName dag.Id) []string {
	def, ok := t.catalog.Lookup(dagName)
	if !ok {
		return nil
	}
	return def.Tasks
}

func (t *Tracker) callbackUrl(tenant, runId string) string {
	if t.config.CallbackBaseUrl == "" {
		return ""
	}
	endpoint := api.Routes()[api.EndpointDagRunCallback]
	base := strings.TrimRight(t.config.CallbackBaseUrl, "/")
	return endpoint.Url(base, runId) + "?" + auth.TenantQueryParam + "=" +
		url.QueryEscape(tenant)
}

func lockKey(tenant, runId string) string {
	return tenant + "/" + runId
}
