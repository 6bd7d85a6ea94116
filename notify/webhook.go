// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// Webhook sends notifications as JSON POST requests onto configured URL. It
// implements Sender interface. Request body contains rendered message text
// and selected fields of MsgData.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// WebhookPayload is the body of webhook notification request.
type WebhookPayload struct {
	Text     string  `json:"text"`
	RunId    string  `json:"runId"`
	Tenant   string  `json:"tenant"`
	DagName  string  `json:"dagName"`
	TaskName *string `json:"taskName,omitempty"`
	Status   string  `json:"status"`
}

// NewWebhook instantiate new Webhook sender. If httpClient is nil, then
// client with 10 seconds timeout is used.
func NewWebhook(url string, httpClient *http.Client, logger *slog.Logger) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{url: url, httpClient: httpClient, logger: logger}
}

// Send renders the template and posts it onto webhook URL. Any non 2xx
// response is treated as an error.
func (w *Webhook) Send(ctx context.Context, tmpl Template, data MsgData) error {
	var msgBuff bytes.Buffer
	if err := tmpl.Execute(&msgBuff, data); err != nil {
		return err
	}
	payload := WebhookPayload{
		Text:     msgBuff.String(),
		RunId:    data.RunId,
		Tenant:   data.Tenant,
		DagName:  data.DagName,
		TaskName: data.TaskName,
		Status:   data.Status,
	}
	body, jErr := json.Marshal(payload)
	if jErr != nil {
		return fmt.Errorf("cannot serialize webhook payload: %w", jErr)
	}
	req, rErr := http.NewRequestWithContext(ctx, http.MethodPost, w.url,
		bytes.NewReader(body))
	if rErr != nil {
		return rErr
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("Cannot send webhook notification", "url", w.url,
			"runId", data.RunId, "err", err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s responded with status %d", w.url,
			resp.StatusCode)
	}
	return nil
}
