// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dagrun

import (
	"strings"

	"github.com/docai/core/dag"
	"github.com/docai/core/payload"
)

// Evaluation is an input for status Policy. Stack must not be modified by
// policies.
type Evaluation struct {
	Previous dag.RunStatus
	Accepted bool
	Stack    *StatusStack
	Declared []string
}

// Policy decides aggregate DAG run status based on the status stack. Policies
// must be deterministic and pure.
type Policy interface {
	Evaluate(Evaluation) dag.RunStatus
}

// PolicyFunc is an adapter to use ordinary functions as Policy.
type PolicyFunc func(Evaluation) dag.RunStatus

// Evaluate calls f(e).
func (f PolicyFunc) Evaluate(e Evaluation) dag.RunStatus {
	return f(e)
}

// RequiredTasksPolicy is the default Policy. Run completes when all declared
// tasks reported without failure. Run fails as soon as any task reports
// failure. A failed run becomes partial_failure when another declared task
// reports success after the first failure. Completed and partial_failure are
// sticky and failed can only turn into partial_failure, until the run is
// reset.
//
// Rules in order:
//  1. Previous completed or partial_failure: keep it.
//  2. Empty stack: pending when executor has not accepted the run yet,
//     running otherwise.
//  3. Some task reported failure: partial_failure when a declared task
//     succeeded after the first failure, failed otherwise.
//  4. Previous failed: keep it.
//  5. All declared tasks reported: completed. DAG without declared tasks
//     never completes.
//  6. Otherwise running.
//
// Task report "after" the failure means received later. Reports received at
// the same time are ordered by their position in the stack.
type RequiredTasksPolicy struct {
	// IsFailure decides whether task content signals failure. When nil,
	// ContentSignalsFailure is used.
	IsFailure func(payload.Value) bool
}

// DefaultPolicy returns RequiredTasksPolicy with ContentSignalsFailure.
func DefaultPolicy() Policy {
	return RequiredTasksPolicy{IsFailure: ContentSignalsFailure}
}

// Evaluate evaluates the status.
func (p RequiredTasksPolicy) Evaluate(e Evaluation) dag.RunStatus {
	if e.Previous == dag.RunCompleted || e.Previous == dag.RunPartialFailure {
		return e.Previous
	}
	if e.Stack == nil || e.Stack.Len() == 0 {
		if e.Accepted {
			return dag.RunRunning
		}
		return dag.RunPending
	}

	isFailure := p.IsFailure
	if isFailure == nil {
		isFailure = ContentSignalsFailure
	}

	entries := e.Stack.All()
	firstFailure := -1
	for idx, entry := range entries {
		if !isFailure(entry.Content) {
			continue
		}
		if firstFailure < 0 || entry.ReceivedAt.Before(entries[firstFailure].ReceivedAt) {
			firstFailure = idx
		}
	}

	if firstFailure >= 0 {
		failedAt := entries[firstFailure].ReceivedAt
		for _, task := range e.Declared {
			entry, reported := e.Stack.Find(task)
			if !reported || isFailure(entry.Content) {
				continue
			}
			later := entry.ReceivedAt.After(failedAt) ||
				(entry.ReceivedAt.Equal(failedAt) &&
					e.Stack.Position(task) > firstFailure)
			if later {
				return dag.RunPartialFailure
			}
		}
		return dag.RunFailed
	}
	if e.Previous == dag.RunFailed {
		return dag.RunFailed
	}

	outstanding := 0
	for _, task := range e.Declared {
		if _, reported := e.Stack.Find(task); !reported {
			outstanding++
		}
	}
	if len(e.Declared) > 0 && outstanding == 0 {
		return dag.RunCompleted
	}
	return dag.RunRunning
}

var failureStatuses = map[string]struct{}{
	"failed":  {},
	"failure": {},
	"error":   {},
	"aborted": {},
}

// ContentSignalsFailure checks if task content reports failure. Content
// reports failure when it's a map and at least one of holds:
//   - "ok" is false,
//   - "error" is present and not empty (null, "", false, {} and [] are empty),
//   - "status" is one of failed, failure, error or aborted (case-insensitive).
//
// Any other content, including non-map values, is treated as success.
func ContentSignalsFailure(content payload.Value) bool {
	if content.Kind() != payload.Map {
		return false
	}
	if ok, exists := content.Get("ok"); exists {
		if b, isBool := ok.AsBool(); isBool && !b {
			return true
		}
	}
	if errVal, exists := content.Get("error"); exists && !errVal.IsEmpty() {
		return true
	}
	if status, exists := content.Get("status"); exists {
		if s, isStr := status.AsString(); isStr {
			_, failed := failureStatuses[strings.ToLower(strings.TrimSpace(s))]
			return failed
		}
	}
	return false
}
