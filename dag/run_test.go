// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"encoding/json"
	"testing"
)

func TestRunStatusStringAndParse(t *testing.T) {
	for _, status := range RunStatuses() {
		parsed, err := ParseRunStatus(status.String())
		if err != nil {
			t.Errorf("Cannot parse %s: %s", status.String(), err.Error())
		}
		if parsed != status {
			t.Errorf("Expected %s, got: %s", status.String(), parsed.String())
		}
	}
	if _, err := ParseRunStatus("COMPLETED"); err == nil {
		t.Error("Expected statuses to be case-sensitive")
	}
}

func TestRunStatusPredicates(t *testing.T) {
	inputs := []struct {
		status     RunStatus
		isTerminal bool
		isFailure  bool
	}{
		{RunPending, false, false},
		{RunRunning, false, false},
		{RunPartialFailure, true, true},
		{RunFailed, true, true},
		{RunCompleted, true, false},
	}
	for _, input := range inputs {
		if input.status.IsTerminal() != input.isTerminal {
			t.Errorf("Expected IsTerminal=%v for %s", input.isTerminal,
				input.status.String())
		}
		if input.status.IsFailure() != input.isFailure {
			t.Errorf("Expected IsFailure=%v for %s", input.isFailure,
				input.status.String())
		}
	}
}

func TestRunStatusJSON(t *testing.T) {
	type wrapper struct {
		Status RunStatus `json:"status"`
	}
	data, err := json.Marshal(wrapper{RunPartialFailure})
	if err != nil {
		t.Fatalf("Cannot marshal status: %s", err.Error())
	}
	if string(data) != `{"status":"partial_failure"}` {
		t.Errorf("Unexpected JSON: %s", string(data))
	}
	var w wrapper
	if err := json.Unmarshal([]byte(`{"status":"completed"}`), &w); err != nil {
		t.Fatalf("Cannot unmarshal status: %s", err.Error())
	}
	if w.Status != RunCompleted {
		t.Errorf("Expected completed, got: %s", w.Status.String())
	}
	if err := json.Unmarshal([]byte(`{"status":"done"}`), &w); err == nil {
		t.Error("Expected error for unknown status")
	}
}
