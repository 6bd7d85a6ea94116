// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docai/core/dag"
	"github.com/docai/core/dagrun"
	"github.com/docai/core/db"
	"github.com/docai/core/payload"
	"github.com/docai/core/timeutils"
)

// Registry is the persistence boundary of DAG runs. All methods are scoped
// by tenant, DAG run of another tenant is reported as not found.
type Registry interface {
	// Create persists new DAG run.
	Create(ctx context.Context, run *dagrun.DagRun) error

	// FindById reads DAG run together with its status stack.
	FindById(ctx context.Context, tenant, runId string) (*dagrun.DagRun, error)

	// ListByOwner reads DAG runs of given owner, the most recent first. Status
	// stacks are not loaded.
	ListByOwner(ctx context.Context, tenant, ownerId string, limit int) ([]*dagrun.DagRun, error)

	// Update reads DAG run, applies fn and persists the result atomically.
	// When fn returns an error, nothing is persisted and the error is
	// returned as is.
	Update(ctx context.Context, tenant, runId string, fn func(*dagrun.DagRun) error) (*dagrun.DagRun, error)

	// CountByStatus counts DAG runs of given tenant by status.
	CountByStatus(ctx context.Context, tenant string) (map[dag.RunStatus]int, error)
}

// DbRegistry implements Registry on top of db.Client.
type DbRegistry struct {
	dbClient *db.Client
	logger   *slog.Logger
}

// NewDbRegistry creates new DbRegistry. When logger is nil, default logger
// is used.
func NewDbRegistry(dbClient *db.Client, logger *slog.Logger) *DbRegistry {
	if logger == nil {
		logger = defaultLogger()
	}
	return &DbRegistry{dbClient: dbClient, logger: logger}
}

// Create inserts new DAG run. Status stack of new DAG run is expected to be
// empty.
func (r *DbRegistry) Create(ctx context.Context, run *dagrun.DagRun) error {
	const op = "create"
	row := toDbDagRun(run)
	if _, err := r.dbClient.InsertDagRun(ctx, row); err != nil {
		return dagrun.Persistence(op, err)
	}
	return nil
}

// FindById reads DAG run and its status stack within a single transaction,
// so the stack always matches the DAG run row.
func (r *DbRegistry) FindById(ctx context.Context, tenant, runId string) (*dagrun.DagRun, error) {
	const op = "find"
	var run *dagrun.DagRun
	txErr := r.dbClient.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		row, err := tx.ReadDagRun(ctx, tenant, runId)
		if errors.Is(err, sql.ErrNoRows) {
			return dagrun.NotFound(op, runId)
		}
		if err != nil {
			return dagrun.Persistence(op, err)
		}
		stack, sErr := tx.ReadStatusStack(ctx, runId)
		if sErr != nil {
			return dagrun.Persistence(op, sErr)
		}
		var cErr error
		run, cErr = fromDbDagRun(row, stack)
		if cErr != nil {
			return dagrun.Persistence(op, cErr)
		}
		return nil
	})
	if txErr != nil {
		var drErr *dagrun.Error
		if errors.As(txErr, &drErr) {
			return nil, txErr
		}
		return nil, dagrun.Persistence(op, txErr)
	}
	return run, nil
}

// ListByOwner reads DAG runs of given owner without their status stacks.
func (r *DbRegistry) ListByOwner(ctx context.Context, tenant, ownerId string, limit int) ([]*dagrun.DagRun, error) {
	const op = "list"
	rows, err := r.dbClient.ReadDagRunsByOwner(ctx, tenant, ownerId, limit)
	if err != nil {
		return nil, dagrun.Persistence(op, err)
	}
	runs := make([]*dagrun.DagRun, 0, len(rows))
	for _, row := range rows {
		run, cErr := fromDbDagRun(row, nil)
		if cErr != nil {
			return nil, dagrun.Persistence(op, cErr)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Update reads DAG run within a transaction, applies fn and writes the
// difference back. Status stack entries are inserted or updated one by one,
// unless some entries were removed (reset), in which case the whole stack is
// rewritten.
func (r *DbRegistry) Update(
	ctx context.Context, tenant, runId string, fn func(*dagrun.DagRun) error,
) (*dagrun.DagRun, error) {
	const op = "update"
	start := time.Now()
	var updated *dagrun.DagRun

	txErr := r.dbClient.RunInTx(ctx, func(ctx context.Context, tx *db.Tx) error {
		row, err := tx.ReadDagRunForUpdate(ctx, tenant, runId)
		if errors.Is(err, sql.ErrNoRows) {
			return dagrun.NotFound(op, runId)
		}
		if err != nil {
			return dagrun.Persistence(op, err)
		}
		stackRows, sErr := tx.ReadStatusStack(ctx, runId)
		if sErr != nil {
			return dagrun.Persistence(op, sErr)
		}
		run, cErr := fromDbDagRun(row, stackRows)
		if cErr != nil {
			return dagrun.Persistence(op, cErr)
		}

		if fnErr := fn(run); fnErr != nil {
			return fnErr
		}

		if err := persistStack(ctx, tx, runId, stackRows, run.Entries()); err != nil {
			return dagrun.Persistence(op, err)
		}
		uErr := tx.UpdateDagRunState(
			ctx, tenant, runId, run.Status().String(), run.Accepted(),
			timeutils.ToString(run.UpdatedAt),
		)
		if uErr != nil {
			return dagrun.Persistence(op, uErr)
		}
		updated = run
		return nil
	})
	if txErr != nil {
		var drErr *dagrun.Error
		if errors.As(txErr, &drErr) {
			return nil, txErr
		}
		return nil, dagrun.Persistence(op, txErr)
	}
	r.logger.Debug("DAG run updated", "tenant", tenant, "runId", runId,
		"status", updated.Status().String(), "duration", time.Since(start))
	return updated, nil
}

// CountByStatus counts DAG runs of given tenant by status.
func (r *DbRegistry) CountByStatus(ctx context.Context, tenant string) (map[dag.RunStatus]int, error) {
	agg, err := r.dbClient.ReadDagRunsAggByStatus(ctx, tenant)
	if err != nil {
		return nil, dagrun.Persistence("stats", err)
	}
	result := make(map[dag.RunStatus]int, len(agg))
	for statusStr, cnt := range agg {
		status, pErr := dag.ParseRunStatus(statusStr)
		if pErr != nil {
			r.logger.Warn("Unexpected DAG run status in the database",
				"tenant", tenant, "status", statusStr)
			continue
		}
		result[status] = cnt
	}
	return result, nil
}

func persistStack(
	ctx context.Context, tx *db.Tx, runId string,
	before []db.StatusStackEntry, after []dagrun.TaskStatusEntry,
) error {
	prev := make(map[string]db.StatusStackEntry, len(before))
	for _, e := range before {
		prev[e.TaskName] = e
	}
	current := make(map[string]struct{}, len(after))
	for _, e := range after {
		current[e.TaskName] = struct{}{}
	}
	rewrite := false
	for name := range prev {
		if _, exists := current[name]; !exists {
			rewrite = true
			break
		}
	}
	if rewrite {
		if _, err := tx.DeleteStatusStack(ctx, runId); err != nil {
			return err
		}
		prev = map[string]db.StatusStackEntry{}
	}

	for pos, e := range after {
		row := toDbStackEntry(runId, pos, e)
		old, exists := prev[e.TaskName]
		if !exists {
			if err := tx.InsertStatusStackEntry(ctx, row); err != nil {
				return err
			}
			continue
		}
		if stackEntryEqual(old, row) {
			continue
		}
		row.InsertTs = old.InsertTs
		if err := tx.UpdateStatusStackEntry(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func stackEntryEqual(a, b db.StatusStackEntry) bool {
	if (a.Function == nil) != (b.Function == nil) {
		return false
	}
	if a.Function != nil && *a.Function != *b.Function {
		return false
	}
	return a.Content == b.Content && a.ReceivedTs == b.ReceivedTs
}

func toDbDagRun(run *dagrun.DagRun) db.DagRun {
	return db.DagRun{
		RunId:     run.Id,
		Tenant:    run.Tenant,
		OwnerId:   run.Owner.Id,
		OwnerType: run.Owner.Type,
		DagName:   string(run.DagName),
		Status:    run.Status().String(),
		Accepted:  run.Accepted(),
		Params:    run.Params.ToJSONString(),
		ChatbotId: run.ChatbotId,
		CreateTs:  timeutils.ToString(run.CreatedAt),
		UpdateTs:  timeutils.ToString(run.UpdatedAt),
	}
}

func toDbStackEntry(runId string, pos int, e dagrun.TaskStatusEntry) db.StatusStackEntry {
	var function *string
	if e.Function != "" {
		fn := e.Function
		function = &fn
	}
	receivedTs := timeutils.ToString(e.ReceivedAt)
	return db.StatusStackEntry{
		RunId:      runId,
		TaskName:   e.TaskName,
		Position:   pos,
		Content:    e.Content.ToJSONString(),
		Function:   function,
		InsertTs:   receivedTs,
		ReceivedTs: receivedTs,
	}
}

func fromDbDagRun(row db.DagRun, stack []db.StatusStackEntry) (*dagrun.DagRun, error) {
	status, sErr := dag.ParseRunStatus(row.Status)
	if sErr != nil {
		return nil, sErr
	}
	params, pErr := payload.ParseString(row.Params)
	if pErr != nil {
		return nil, fmt.Errorf("cannot parse params of DAG run %s: %w",
			row.RunId, pErr)
	}
	createdAt, cErr := timeutils.FromString(row.CreateTs)
	if cErr != nil {
		return nil, cErr
	}
	updatedAt, uErr := timeutils.FromString(row.UpdateTs)
	if uErr != nil {
		return nil, uErr
	}
	entries := make([]dagrun.TaskStatusEntry, 0, len(stack))
	for _, e := range stack {
		entry, eErr := fromDbStackEntry(e)
		if eErr != nil {
			return nil, eErr
		}
		entries = append(entries, entry)
	}
	base := dagrun.DagRun{
		Id:        row.RunId,
		Tenant:    row.Tenant,
		Owner:     dagrun.Owner{Id: row.OwnerId, Type: row.OwnerType},
		DagName:   dag.Id(row.DagName),
		Params:    params,
		ChatbotId: row.ChatbotId,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	return dagrun.Restore(base, status, row.Accepted, entries), nil
}

func fromDbStackEntry(e db.StatusStackEntry) (dagrun.TaskStatusEntry, error) {
	content, cErr := payload.ParseString(e.Content)
	if cErr != nil {
		return dagrun.TaskStatusEntry{}, fmt.Errorf(
			"cannot parse content of task %s: %w", e.TaskName, cErr)
	}
	receivedAt, rErr := timeutils.FromString(e.ReceivedTs)
	if rErr != nil {
		return dagrun.TaskStatusEntry{}, rErr
	}
	entry := dagrun.TaskStatusEntry{
		TaskName:   e.TaskName,
		Content:    content,
		ReceivedAt: receivedAt,
	}
	if e.Function != nil {
		entry.Function = *e.Function
	}
	return entry, nil
}
