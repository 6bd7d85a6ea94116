// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package notify

import (
	"bytes"
	"context"
	"log/slog"
)

// LogsErr is a Sender which writes rendered notifications as logs of
// severity ERROR, together with DAG run attributes. It's the default sender
// of the tracker, when no webhook is configured.
type LogsErr struct {
	logger *slog.Logger
}

// NewLogsErr instantiate new LogsErr for given structured logger.
func NewLogsErr(logger *slog.Logger) *LogsErr {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogsErr{logger: logger}
}

// Send renders given template and logs the message.
func (l *LogsErr) Send(_ context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	if writeErr := tmpl.Execute(&msgBuff, data); writeErr != nil {
		return writeErr
	}
	attrs := []any{
		"runId", data.RunId, "tenant", data.Tenant, "dagName", data.DagName,
		"status", data.Status,
	}
	if data.TaskName != nil {
		attrs = append(attrs, "taskName", *data.TaskName)
	}
	l.logger.Error(msgBuff.String(), attrs...)
	return nil
}
