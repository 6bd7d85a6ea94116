// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dagrun

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/docai/core/payload"
)

// TaskStatusEntry is the latest reported status of a single task of a DAG
// run.
type TaskStatusEntry struct {
	TaskName   string        `json:"taskName"`
	Content    payload.Value `json:"content"`
	Function   string        `json:"function,omitempty"`
	ReceivedAt time.Time     `json:"receivedAt"`
}

// StatusStack is an ordered collection of task status entries, unique by task
// name. Entries keep the position of the first report of given task, later
// reports replace the entry in place. StatusStack is not safe for concurrent
// use, DAG runs are mutated under per-run lock.
type StatusStack struct {
	entries []TaskStatusEntry
	index   map[string]int
}

// NewStatusStack creates stack from given entries in given order. When the
// same task name occurs more than once, the later entry wins and the position
// of the first occurrence is kept.
func NewStatusStack(entries ...TaskStatusEntry) *StatusStack {
	ss := &StatusStack{
		entries: make([]TaskStatusEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		ss.Upsert(e)
	}
	return ss
}

// Upsert inserts new entry or replaces content, function and receivedAt of
// existing entry with the same task name. Position of existing entry is not
// changed. It returns true if the entry was inserted.
func (ss *StatusStack) Upsert(entry TaskStatusEntry) bool {
	if ss.index == nil {
		ss.index = make(map[string]int)
	}
	if idx, exists := ss.index[entry.TaskName]; exists {
		ss.entries[idx] = entry
		return false
	}
	ss.index[entry.TaskName] = len(ss.entries)
	ss.entries = append(ss.entries, entry)
	return true
}

// Find returns entry for given task name.
func (ss *StatusStack) Find(taskName string) (TaskStatusEntry, bool) {
	idx, exists := ss.index[taskName]
	if !exists {
		return TaskStatusEntry{}, false
	}
	return ss.entries[idx], true
}

// Position returns position of given task in the stack or -1.
func (ss *StatusStack) Position(taskName string) int {
	idx, exists := ss.index[taskName]
	if !exists {
		return -1
	}
	return idx
}

// All returns a copy of entries in stack order.
func (ss *StatusStack) All() []TaskStatusEntry {
	out := make([]TaskStatusEntry, len(ss.entries))
	copy(out, ss.entries)
	return out
}

// Len returns number of entries.
func (ss *StatusStack) Len() int {
	return len(ss.entries)
}

// Clear removes all entries.
func (ss *StatusStack) Clear() {
	ss.entries = nil
	clear(ss.index)
}

// Clone returns deep enough copy of the stack. Payloads are immutable, so they
// are shared.
func (ss *StatusStack) Clone() *StatusStack {
	return NewStatusStack(ss.entries...)
}

// MarshalJSON serializes the stack as JSON array of entries.
func (ss *StatusStack) MarshalJSON() ([]byte, error) {
	if len(ss.entries) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(ss.entries)
}

// UnmarshalJSON deserializes the stack from JSON array of entries.
func (ss *StatusStack) UnmarshalJSON(data []byte) error {
	var entries []TaskStatusEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*ss = *NewStatusStack(entries...)
	return nil
}
