// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package airflow implements tracker.Signaler on top of Apache Airflow stable
// REST API. Starting a DAG run means triggering Airflow DAG of the same name
// with DAG run id, tenant and callback URL passed in DAG run conf.
package airflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/docai/core/pace"
	"github.com/docai/core/payload"
	"github.com/docai/core/tracker"
)

// TriggerRoutePattern is the route of Airflow DAG trigger endpoint, in
// net/http ServeMux syntax.
const TriggerRoutePattern = "POST /api/v1/dags/{dag}/dagRuns"

// Config represents configuration of Airflow Client.
type Config struct {
	// Base URL of Airflow webserver, for example http://airflow:8080.
	BaseUrl string

	// Basic auth credentials. Empty username disables basic auth.
	Username string
	Password string

	Timeout time.Duration

	// Number of trigger attempts on transport errors and 5xx responses.
	MaxAttempts int

	// Creates pace of trigger retries, one per Signal call. When nil, linear
	// backoff from 100ms up to 2s is used.
	RetryPace func() pace.Strategy
}

// DefaultConfig is a default Client configuration.
var DefaultConfig Config = Config{
	BaseUrl:     "http://localhost:8080",
	Timeout:     10 * time.Second,
	MaxAttempts: 3,
}

// TriggerConf is passed as Airflow DAG run conf.
type TriggerConf struct {
	Params      payload.Value `json:"params"`
	Tenant      string        `json:"tenant"`
	DagRunId    string        `json:"dag_run_id"`
	CallbackUrl string        `json:"callback_url,omitempty"`
}

// TriggerRequest is the body of Airflow DAG trigger request.
type TriggerRequest struct {
	DagRunId string      `json:"dag_run_id"`
	Conf     TriggerConf `json:"conf"`
}

// TriggerError is returned when Airflow rejects trigger request.
type TriggerError struct {
	DagName    string
	StatusCode int
	Body       string
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("airflow rejected trigger of DAG %s with status %d: %s",
		e.DagName, e.StatusCode, e.Body)
}

// Client triggers Airflow DAG runs.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates new Airflow Client. When httpClient is nil, new one with
// config timeout is created. When logger is nil, default logger is used.
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		opts := slog.HandlerOptions{Level: slog.LevelWarn}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &opts))
	}
	if config.RetryPace == nil {
		config.RetryPace = func() pace.Strategy {
			return pace.MustLinearBackoff(
				100*time.Millisecond, 2*time.Second, 300*time.Millisecond, 1,
			)
		}
	}
	config.BaseUrl = strings.TrimRight(config.BaseUrl, "/")
	return &Client{httpClient: httpClient, config: config, logger: logger}
}

// TriggerUrl returns URL of trigger endpoint for given DAG.
func (c *Client) TriggerUrl(dagName string) string {
	return fmt.Sprintf("%s/api/v1/dags/%s/dagRuns", c.config.BaseUrl,
		url.PathEscape(dagName))
}

// Signal triggers Airflow DAG run. Response 409 means that DAG run with this
// id was already triggered and it's treated as success.
func (c *Client) Signal(ctx context.Context, req tracker.StartRequest) error {
	start := time.Now()
	body, jErr := json.Marshal(TriggerRequest{
		DagRunId: req.RunId,
		Conf: TriggerConf{
			Params:      req.Params,
			Tenant:      req.Tenant,
			DagRunId:    req.RunId,
			CallbackUrl: req.CallbackUrl,
		},
	})
	if jErr != nil {
		return fmt.Errorf("cannot serialize trigger request: %w", jErr)
	}
	c.logger.Debug("Start triggering Airflow DAG", "dagName", req.DagName,
		"runId", req.RunId)

	attempt := 0
	err := pace.Retry(ctx, c.config.RetryPace(), c.config.MaxAttempts,
		func() error {
			attempt++
			return c.trigger(ctx, req.DagName, body)
		},
		func(err error, next time.Duration) {
			c.logger.Warn("Airflow trigger failed, retrying", "dagName",
				req.DagName, "runId", req.RunId, "attempt", attempt, "next",
				next, "err", err)
		},
	)
	if err != nil {
		return err
	}
	c.logger.Debug("Finished triggering Airflow DAG", "dagName", req.DagName,
		"runId", req.RunId, "attempts", attempt, "duration", time.Since(start))
	return nil
}

func (c *Client) trigger(ctx context.Context, dagName string, body []byte) error {
	httpReq, rErr := http.NewRequestWithContext(
		ctx, http.MethodPost, c.TriggerUrl(dagName), bytes.NewReader(body),
	)
	if rErr != nil {
		return pace.Permanent(rErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.Username != "" {
		httpReq.SetBasicAuth(c.config.Username, c.config.Password)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cannot reach Airflow: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		c.logger.Info("Airflow DAG run already exists", "dagName", dagName)
		return nil
	}
	tErr := &TriggerError{
		DagName:    dagName,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
	if resp.StatusCode >= 500 {
		return tErr
	}
	return pace.Permanent(tErr)
}
