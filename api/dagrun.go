// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/docai/core/payload"
)

const maxInputNameLength = 256

// DagRunCreateInput defines input structure for creating new DAG run.
type DagRunCreateInput struct {
	DagName   string        `json:"dagName"`
	Params    payload.Value `json:"params"`
	ChatbotId *string       `json:"chatbotId,omitempty"`

	// When true, DAG run is only created, without signalling the executor.
	SkipStart bool `json:"skipStart,omitempty"`
}

// Validate checks input shape. DAG name normalization happens later.
func (in DagRunCreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DagName, validation.Required,
			validation.RuneLength(1, maxInputNameLength)),
		validation.Field(&in.Params, validation.By(nullOrMap)),
		validation.Field(&in.ChatbotId, validation.NilOrNotEmpty),
	)
}

// TaskStatusUpdateInput defines input of executor callback with status of a
// single task.
type TaskStatusUpdateInput struct {
	TaskName string        `json:"taskName"`
	Content  payload.Value `json:"content"`
	Function *string       `json:"function,omitempty"`
}

// Validate checks callback input shape.
func (in TaskStatusUpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.TaskName, validation.Required,
			validation.RuneLength(1, maxInputNameLength)),
		validation.Field(&in.Function, validation.NilOrNotEmpty),
	)
}

func nullOrMap(value any) error {
	v, ok := value.(payload.Value)
	if !ok {
		return errors.New("must be a JSON value")
	}
	if v.Kind() != payload.Null && v.Kind() != payload.Map {
		return errors.New("must be a JSON object")
	}
	return nil
}

// DagRunSummary contains basic information about DAG run, without status
// stack. Timestamps are in timeutils.TimestampFormat.
type DagRunSummary struct {
	RunId     string  `json:"runId"`
	DagName   string  `json:"dagName"`
	Status    string  `json:"status"`
	Accepted  bool    `json:"accepted"`
	OwnerId   string  `json:"ownerId"`
	OwnerType string  `json:"ownerType"`
	ChatbotId *string `json:"chatbotId,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// TaskStatus is a single entry of DAG run status stack.
type TaskStatus struct {
	TaskName   string        `json:"taskName"`
	Content    payload.Value `json:"content"`
	Function   *string       `json:"function,omitempty"`
	ReceivedAt string        `json:"receivedAt"`
}

// DagRunDetails contains full information about DAG run.
type DagRunDetails struct {
	DagRunSummary
	Tenant      string        `json:"tenant"`
	Params      payload.Value `json:"params"`
	Finished    bool          `json:"finished"`
	StatusStack []TaskStatus  `json:"statusStack"`
}

// DagRunStatusOutput is returned by endpoints which change or check DAG run
// status.
type DagRunStatusOutput struct {
	RunId    string `json:"runId"`
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
	Finished bool   `json:"finished"`
}

// DagRunStats contains number of DAG runs by status within a tenant.
type DagRunStats struct {
	Tenant   string         `json:"tenant"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

// ErrorOutput is the body of every non-2xx response. Kind is one of
// validation, not_found, invalid_state, executor_signal, persistence,
// unauthorized or internal.
type ErrorOutput struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	RunId   string `json:"runId,omitempty"`
}
