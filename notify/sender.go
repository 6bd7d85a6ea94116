// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package notify provides a way to send external notifications about DAG runs
// which went wrong.
package notify

import (
	"context"
	"io"
	"text/template"
)

// Template represents a message template. Go standard text/template.Template
// and html/template.Template satisfy this interface.
type Template interface {
	Execute(io.Writer, any) error
}

// Sender sends a Message notification. Usually onto an external channel of
// communication. Template should be already parsed text template which can use
// additional information from MsgData.
type Sender interface {
	Send(context.Context, Template, MsgData) error
}

// MsgData contains a DAG run contextual information.
type MsgData struct {
	RunId      string
	Tenant     string
	DagName    string
	TaskName   *string
	PrevStatus string
	Status     string
	UpdatedAt  string
	Reason     error
	Details    map[string]any
}

// DefaultTemplate is used by the tracker when no other template is
// configured.
var DefaultTemplate Template = template.Must(template.New("default").Parse(
	`DAG run {{.RunId}} ({{.Tenant}}/{{.DagName}}) changed status from ` +
		`{{.PrevStatus}} to {{.Status}} at {{.UpdatedAt}}` +
		`{{- if .TaskName}} after update of task {{.TaskName}}{{end}}` +
		`{{- if .Reason}}: {{.Reason.Error}}{{end}}`,
))
