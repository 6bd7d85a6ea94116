// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import "fmt"

// RunStatus enumerates possible DAG run states.
type RunStatus int

const (
	RunPending RunStatus = iota
	RunRunning
	RunPartialFailure
	RunFailed
	RunCompleted
)

// String serialize RunStatus.
func (s RunStatus) String() string {
	return [...]string{
		"pending",
		"running",
		"partial_failure",
		"failed",
		"completed",
	}[s]
}

// IsTerminal checks if DAG run in this status is finished, that is
// completed, failed or partial_failure.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunPartialFailure
}

// IsFailure checks if status indicates that at least one task failed.
func (s RunStatus) IsFailure() bool {
	return s == RunFailed || s == RunPartialFailure
}

// MarshalText serializes RunStatus for text based encoders like JSON.
func (s RunStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses RunStatus from its text form.
func (s *RunStatus) UnmarshalText(text []byte) error {
	status, err := ParseRunStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// ParseRunStatus parses run status based on given string. If given string does
// not match any run status, then non-nil error is returned. Statuses are
// case-sensitive.
func ParseRunStatus(s string) (RunStatus, error) {
	states := map[string]RunStatus{
		"pending":         RunPending,
		"running":         RunRunning,
		"partial_failure": RunPartialFailure,
		"failed":          RunFailed,
		"completed":       RunCompleted,
	}
	if status, ok := states[s]; ok {
		return status, nil
	}
	return 0, fmt.Errorf("invalid RunStatus: %s", s)
}

// RunStatuses returns all DAG run statuses in their natural order.
func RunStatuses() []RunStatus {
	return []RunStatus{
		RunPending, RunRunning, RunPartialFailure, RunFailed, RunCompleted,
	}
}
