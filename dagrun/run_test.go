// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dagrun

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/docai/core/dag"
	"github.com/docai/core/payload"
)

var testNow = time.Date(2024, time.May, 10, 8, 30, 0, 0, time.UTC)

func TestNewDagRun(t *testing.T) {
	run, err := New(NewParams{
		Id:      "run-1",
		Tenant:  "acme",
		Owner:   Owner{Id: "u1"},
		DagName: "ETL Pipeline",
		Params:  payload.MustFromAny(map[string]any{"file": "a.pdf"}),
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err.Error())
	}
	if run.Status() != dag.RunPending {
		t.Errorf("Expected pending, got: %s", run.Status().String())
	}
	if run.DagName != "etl_pipeline" {
		t.Errorf("Expected normalized name etl_pipeline, got: %s", run.DagName)
	}
	if run.Owner.Type != DefaultOwnerType {
		t.Errorf("Expected default owner type, got: %s", run.Owner.Type)
	}
	if run.Accepted() {
		t.Error("Expected new run to not be accepted")
	}
	if len(run.Entries()) != 0 {
		t.Errorf("Expected empty status stack, got: %v", run.Entries())
	}
	if !run.CreatedAt.Equal(testNow) || !run.UpdatedAt.Equal(testNow) {
		t.Errorf("Unexpected timestamps: %v, %v", run.CreatedAt, run.UpdatedAt)
	}
}

func TestNewDagRunValidation(t *testing.T) {
	valid := NewParams{Id: "r", Tenant: "t", Owner: Owner{Id: "u"},
		DagName: "etl", Now: testNow}
	inputs := []func(p *NewParams){
		func(p *NewParams) { p.Id = " " },
		func(p *NewParams) { p.Tenant = "" },
		func(p *NewParams) { p.Owner.Id = "" },
		func(p *NewParams) { p.DagName = "" },
		func(p *NewParams) { p.DagName = "---" },
		func(p *NewParams) { p.DagName = "9lives" },
	}
	for idx, modify := range inputs {
		p := valid
		modify(&p)
		_, err := New(p)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Case %d: expected validation error, got: %v", idx, err)
		}
	}
}

// Scenario: etl_pipeline with extract and load tasks.
func TestDagRunEtlPipelineCompletes(t *testing.T) {
	declared := []string{"extract", "load"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl_pipeline")

	if err := run.ResetWorkflow(testNow); err != nil {
		t.Fatalf("Unexpected reset error: %s", err.Error())
	}
	if got := run.MarkStarted(policy, declared, testNow); got != dag.RunRunning {
		t.Errorf("Expected running after start, got: %s", got.String())
	}

	status := run.RecordTaskUpdate(entry("extract", `{"ok":true}`,
		testNow.Add(time.Second)), policy, declared)
	if status != dag.RunRunning {
		t.Errorf("Expected running after extract, got: %s", status.String())
	}
	if run.CheckStatusFinish() {
		t.Error("Expected run to not be finished after extract")
	}

	status = run.RecordTaskUpdate(entry("load", `{"ok":true}`,
		testNow.Add(2*time.Second)), policy, declared)
	if status != dag.RunCompleted {
		t.Errorf("Expected completed after load, got: %s", status.String())
	}
	if !run.CheckStatusFinish() {
		t.Error("Expected run to be finished")
	}
	if len(run.Entries()) != 2 {
		t.Errorf("Expected 2 entries, got: %d", len(run.Entries()))
	}
	if !run.UpdatedAt.Equal(testNow.Add(2 * time.Second)) {
		t.Errorf("Expected UpdatedAt to follow the latest report, got: %v",
			run.UpdatedAt)
	}
}

// Scenario: failing task.
func TestDagRunFailure(t *testing.T) {
	declared := []string{"extract", "load"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl_pipeline")
	run.MarkStarted(policy, declared, testNow)

	status := run.RecordTaskUpdate(entry("extract",
		`{"ok":false,"error":"timeout"}`, testNow), policy, declared)
	if status != dag.RunFailed {
		t.Errorf("Expected failed, got: %s", status.String())
	}
	if !run.CheckStatusFinish() {
		t.Error("Expected failed run to be finished")
	}

	status = run.RecordTaskUpdate(entry("extract", `{"ok":true}`, testNow),
		policy, declared)
	if status != dag.RunFailed {
		t.Errorf("Expected failed to be sticky, got: %s", status.String())
	}
}

func TestDagRunSuccessAfterFailure(t *testing.T) {
	declared := []string{"extract", "transform", "load"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl_pipeline")
	run.MarkStarted(policy, declared, testNow)

	steps := []struct {
		task     string
		content  string
		expected dag.RunStatus
	}{
		{"extract", `{"ok":false,"error":"timeout"}`, dag.RunFailed},
		{"transform", `{"ok":true}`, dag.RunPartialFailure},
		{"load", `{"ok":true}`, dag.RunPartialFailure},
	}
	for idx, step := range steps {
		at := testNow.Add(time.Duration(idx+1) * time.Second)
		status := run.RecordTaskUpdate(entry(step.task, step.content, at),
			policy, declared)
		if status != step.expected {
			t.Errorf("After %s expected %s, got: %s", step.task,
				step.expected.String(), status.String())
		}
		if !run.CheckStatusFinish() {
			t.Errorf("Expected run to be finished after %s", step.task)
		}
	}
}

func TestDagRunRecordTaskUpdateIsIdempotent(t *testing.T) {
	declared := []string{"extract", "transform", "load"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl")
	run.MarkStarted(policy, declared, testNow)
	update := entry("extract", `{"ok":true,"rows":42}`, testNow.Add(time.Second))

	s1 := run.RecordTaskUpdate(update, policy, declared)
	entries1 := run.Entries()
	s2 := run.RecordTaskUpdate(update, policy, declared)
	entries2 := run.Entries()

	if s1 != s2 {
		t.Errorf("Expected the same status, got: %s and %s", s1.String(),
			s2.String())
	}
	if diff := cmp.Diff(entries1, entries2); diff != "" {
		t.Errorf("Expected the same stack after repeated update (-1 +2):\n%s",
			diff)
	}
}

func TestDagRunLastWriteWins(t *testing.T) {
	declared := []string{"extract"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl")
	run.MarkStarted(policy, declared, testNow)

	run.RecordTaskUpdate(TaskStatusEntry{TaskName: "extract",
		Content: payload.StringValue("A"), Function: "f1",
		ReceivedAt: testNow}, policy, declared)
	run.RecordTaskUpdate(TaskStatusEntry{TaskName: "extract",
		Content: payload.StringValue("B"), Function: "f2",
		ReceivedAt: testNow.Add(time.Second)}, policy, declared)

	got, exists := run.FindTaskStatus("extract")
	if !exists {
		t.Fatal("Expected extract entry")
	}
	if s, _ := got.Content.AsString(); s != "B" {
		t.Errorf("Expected content B, got: %s", got.Content)
	}
	if got.Function != "f2" {
		t.Errorf("Expected function f2, got: %s", got.Function)
	}
	if len(run.Entries()) != 1 {
		t.Errorf("Expected single entry, got: %d", len(run.Entries()))
	}
}

func TestDagRunCheckStatusFinishIsPure(t *testing.T) {
	declared := []string{"a"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl")
	run.MarkStarted(policy, declared, testNow)
	run.RecordTaskUpdate(entry("a", `{"ok":true}`, testNow), policy, declared)

	before := run.Entries()
	statusBefore := run.Status()
	for i := 0; i < 3; i++ {
		if !run.CheckStatusFinish() {
			t.Error("Expected finished run")
		}
	}
	if run.Status() != statusBefore {
		t.Errorf("Expected status %s, got: %s", statusBefore.String(),
			run.Status().String())
	}
	if diff := cmp.Diff(before, run.Entries()); diff != "" {
		t.Errorf("CheckStatusFinish changed the stack (-before +after):\n%s",
			diff)
	}
}

func TestDagRunResetWhileRunning(t *testing.T) {
	declared := []string{"a", "b"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl")
	run.MarkStarted(policy, declared, testNow)
	run.RecordTaskUpdate(entry("a", `{"ok":true}`, testNow), policy, declared)

	err := run.ResetWorkflow(testNow.Add(time.Minute))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected invalid state error, got: %v", err)
	}
	if run.Status() != dag.RunRunning || !run.Accepted() {
		t.Errorf("Expected run to stay running and accepted, got: %s, %v",
			run.Status().String(), run.Accepted())
	}
	if len(run.Entries()) != 1 {
		t.Errorf("Expected stack to be untouched, got: %d entries",
			len(run.Entries()))
	}
}

func TestDagRunResetAfterFinish(t *testing.T) {
	declared := []string{"a"}
	policy := DefaultPolicy()
	run := newTestRun(t, "etl")
	run.MarkStarted(policy, declared, testNow)
	run.RecordTaskUpdate(entry("a", `{"ok":false}`, testNow), policy, declared)
	if run.Status() != dag.RunFailed {
		t.Fatalf("Expected failed, got: %s", run.Status().String())
	}

	later := testNow.Add(time.Hour)
	if err := run.ResetWorkflow(later); err != nil {
		t.Fatalf("Unexpected reset error: %s", err.Error())
	}
	if run.Status() != dag.RunPending {
		t.Errorf("Expected pending after reset, got: %s", run.Status().String())
	}
	if run.Accepted() {
		t.Error("Expected reset to clear accepted flag")
	}
	if len(run.Entries()) != 0 {
		t.Errorf("Expected empty stack after reset, got: %v", run.Entries())
	}
	if !run.UpdatedAt.Equal(later) {
		t.Errorf("Expected UpdatedAt=%v, got: %v", later, run.UpdatedAt)
	}

	// After reset the run can complete again.
	run.MarkStarted(policy, declared, later)
	run.RecordTaskUpdate(entry("a", `{"ok":true}`, later), policy, declared)
	if run.Status() != dag.RunCompleted {
		t.Errorf("Expected completed after rerun, got: %s",
			run.Status().String())
	}
}

func TestDagRunResetPending(t *testing.T) {
	run := newTestRun(t, "etl")
	if err := run.ResetWorkflow(testNow); err != nil {
		t.Errorf("Expected reset of pending run to succeed, got: %s",
			err.Error())
	}
}

func TestRestore(t *testing.T) {
	base := DagRun{Id: "r1", Tenant: "t", Owner: Owner{Id: "u", Type: "user"},
		DagName: "etl"}
	entries := []TaskStatusEntry{
		entry("a", `1`, testNow), entry("b", `2`, testNow),
	}
	run := Restore(base, dag.RunPartialFailure, true, entries)
	if run.Status() != dag.RunPartialFailure || !run.Accepted() {
		t.Errorf("Unexpected restored state: %s, %v", run.Status().String(),
			run.Accepted())
	}
	if diff := cmp.Diff(entries, run.Entries()); diff != "" {
		t.Errorf("Unexpected restored entries (-want +got):\n%s", diff)
	}
	stack := run.Stack()
	stack.Upsert(entry("c", `3`, testNow))
	if len(run.Entries()) != 2 {
		t.Error("Expected Stack() to return a copy")
	}
}

func TestRecomputeWithInjectedPolicy(t *testing.T) {
	run := newTestRun(t, "etl")
	calls := 0
	policy := PolicyFunc(func(e Evaluation) dag.RunStatus {
		calls++
		if e.Stack.Len() > 0 {
			return dag.RunCompleted
		}
		return dag.RunRunning
	})
	run.MarkStarted(policy, nil, testNow)
	run.RecordTaskUpdate(entry("x", `null`, testNow), policy, nil)
	if run.Status() != dag.RunCompleted {
		t.Errorf("Expected completed from injected policy, got: %s",
			run.Status().String())
	}
	if calls != 2 {
		t.Errorf("Expected 2 policy calls, got: %d", calls)
	}
}

func newTestRun(t *testing.T, dagName string) *DagRun {
	t.Helper()
	run, err := New(NewParams{
		Id:      "run-1",
		Tenant:  "acme",
		Owner:   Owner{Id: "u1", Type: "user"},
		DagName: dagName,
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("Cannot create DAG run: %s", err.Error())
	}
	return run
}
