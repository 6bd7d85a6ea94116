// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package dagrun contains DAG run entity and its state machine.

DAG run is created in pending status with empty status stack. Once the
executor accepts the run, it becomes running. Executor reports results of
tasks asynchronously and each report is merged into the status stack (the
latest report of a task wins) after which aggregate status is recomputed by a
Policy:

	pending --start--> running --reports--> failed | completed
	   ^                                     |
	   |                  failed --reports--> partial_failure
	   |                                     |
	   +--------------- reset ---------------+

Reset is not allowed while the run is running. Methods of DagRun are not safe
for concurrent use, callers are expected to serialize operations on the same
DAG run.
*/
package dagrun

import (
	"strings"
	"time"

	"github.com/docai/core/dag"
	"github.com/docai/core/payload"
)

// DefaultOwnerType is the owner type used when none is given.
const DefaultOwnerType = "user"

// Owner identifies who created a DAG run.
type Owner struct {
	Id   string
	Type string
}

// DagRun is a single execution of a DAG template within a tenant. Identity,
// ownership, DAG name and params are immutable after creation. Status,
// accepted flag and status stack change only through DagRun methods.
type DagRun struct {
	Id        string
	Tenant    string
	Owner     Owner
	DagName   dag.Id
	Params    payload.Value
	ChatbotId *string
	CreatedAt time.Time
	UpdatedAt time.Time

	status   dag.RunStatus
	accepted bool
	stack    *StatusStack
}

// NewParams contains data required to create a DAG run.
type NewParams struct {
	Id        string
	Tenant    string
	Owner     Owner
	DagName   string
	Params    payload.Value
	ChatbotId *string
	Now       time.Time
}

// New creates DAG run in pending status with empty status stack. DAG name is
// normalized. Returns ErrValidation error when id, tenant, owner id or DAG
// name is invalid.
func New(p NewParams) (*DagRun, error) {
	const op = "create"
	if strings.TrimSpace(p.Id) == "" {
		return nil, Validationf(op, "DAG run id is empty")
	}
	if strings.TrimSpace(p.Tenant) == "" {
		return nil, Validationf(op, "tenant is empty")
	}
	if strings.TrimSpace(p.Owner.Id) == "" {
		return nil, Validationf(op, "owner id is empty")
	}
	dagName, nameErr := dag.NormalizeName(p.DagName)
	if nameErr != nil {
		return nil, &Error{Kind: ErrValidation, Op: op, Err: nameErr}
	}
	owner := p.Owner
	if owner.Type == "" {
		owner.Type = DefaultOwnerType
	}
	return &DagRun{
		Id:        p.Id,
		Tenant:    p.Tenant,
		Owner:     owner,
		DagName:   dagName,
		Params:    p.Params,
		ChatbotId: p.ChatbotId,
		CreatedAt: p.Now,
		UpdatedAt: p.Now,
		status:    dag.RunPending,
		stack:     NewStatusStack(),
	}, nil
}

// Restore rebuilds DAG run from persisted state. It's meant for storage
// implementations, status is taken as it is without evaluation.
func Restore(base DagRun, status dag.RunStatus, accepted bool, entries []TaskStatusEntry) *DagRun {
	run := base
	run.status = status
	run.accepted = accepted
	run.stack = NewStatusStack(entries...)
	return &run
}

// Status returns current aggregate status.
func (r *DagRun) Status() dag.RunStatus { return r.status }

// Accepted reports whether the executor accepted the run.
func (r *DagRun) Accepted() bool { return r.accepted }

// Stack returns copy of the status stack.
func (r *DagRun) Stack() *StatusStack {
	if r.stack == nil {
		return NewStatusStack()
	}
	return r.stack.Clone()
}

// Entries returns status stack entries in stack order.
func (r *DagRun) Entries() []TaskStatusEntry {
	if r.stack == nil {
		return []TaskStatusEntry{}
	}
	return r.stack.All()
}

// FindTaskStatus returns the latest status of given task.
func (r *DagRun) FindTaskStatus(taskName string) (TaskStatusEntry, bool) {
	if r.stack == nil {
		return TaskStatusEntry{}, false
	}
	return r.stack.Find(taskName)
}

// ResetWorkflow brings the run back to its initial state: empty status stack,
// not accepted and pending. Returns ErrInvalidState error, without any
// mutation, when the run is running.
func (r *DagRun) ResetWorkflow(now time.Time) error {
	if r.status == dag.RunRunning {
		return InvalidStatef("reset", "DAG run %s is running", r.Id)
	}
	if r.stack == nil {
		r.stack = NewStatusStack()
	}
	r.stack.Clear()
	r.accepted = false
	r.status = dag.RunPending
	r.UpdatedAt = now
	return nil
}

// MarkStarted marks the run as accepted by the executor and recomputes the
// status. For a fresh run it's a transition from pending to running.
func (r *DagRun) MarkStarted(p Policy, declared []string, now time.Time) dag.RunStatus {
	r.accepted = true
	r.UpdatedAt = now
	return r.RecomputeStatus(p, declared)
}

// RecordTaskUpdate merges task report into the status stack and recomputes
// the status. Reports are accepted in every state of the run.
func (r *DagRun) RecordTaskUpdate(entry TaskStatusEntry, p Policy, declared []string) dag.RunStatus {
	if r.stack == nil {
		r.stack = NewStatusStack()
	}
	r.stack.Upsert(entry)
	if entry.ReceivedAt.After(r.UpdatedAt) {
		r.UpdatedAt = entry.ReceivedAt
	}
	return r.RecomputeStatus(p, declared)
}

// RecomputeStatus evaluates the status with given policy and stores it.
func (r *DagRun) RecomputeStatus(p Policy, declared []string) dag.RunStatus {
	if p == nil {
		p = DefaultPolicy()
	}
	stack := r.stack
	if stack == nil {
		stack = NewStatusStack()
	}
	r.status = p.Evaluate(Evaluation{
		Previous: r.status,
		Accepted: r.accepted,
		Stack:    stack,
		Declared: declared,
	})
	return r.status
}

// CheckStatusFinish reports whether the run is finished, that is completed,
// failed or partial_failure.
func (r *DagRun) CheckStatusFinish() bool {
	return r.status.IsTerminal()
}
