// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package exec

import (
	"context"

	"github.com/docai/core/dag"
	"github.com/docai/core/payload"
)

// StepInput is passed to every step of a DAG run.
type StepInput struct {
	RunId   string
	Tenant  string
	DagName string
	Params  payload.Value

	// Results of already executed steps by task name. Failed steps have null
	// result.
	Results map[string]payload.Value
}

// StepFunc executes single step.
type StepFunc func(ctx context.Context, in StepInput) (payload.Value, error)

// Step is a single task of a workflow.
type Step struct {
	TaskName string

	// Function name reported to the tracker together with task status.
	Function string

	Run StepFunc
}

// Workflows maps DAG ids onto steps executed in order.
type Workflows map[dag.Id][]Step

// Catalog returns DAG definitions with tasks declared by the workflows. It
// can be used as tracker catalog, so DAG runs complete once every step
// reported.
func (w Workflows) Catalog() dag.Registry {
	reg := make(dag.Registry, len(w))
	for id, steps := range w {
		tasks := make([]string, 0, len(steps))
		for _, s := range steps {
			tasks = append(tasks, s.TaskName)
		}
		reg[id] = dag.Definition{Id: id, Tasks: tasks}
	}
	return reg
}
