// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/docai/core/api"
	"github.com/docai/core/auth"
)

// Client provides API for interacting with the Tracker.
type Client struct {
	httpClient *http.Client
	trackerUrl string
	logger     *slog.Logger
	routes     map[api.EndpointID]api.Endpoint
	config     ClientConfig
}

// NewClient instantiate new Client. In case when HTTP client or logger are
// nil, those would be initialized with default parameters.
func NewClient(
	url string, httpClient *http.Client, logger *slog.Logger,
	config ClientConfig,
) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.HttpClientTimeout}
	}
	if logger == nil {
		logger = defaultLogger()
	}
	return &Client{
		httpClient: httpClient,
		trackerUrl: strings.TrimRight(url, "/"),
		logger:     logger,
		routes:     api.Routes(),
		config:     config,
	}
}

// CreateDagRun creates new DAG run and, unless input says otherwise, starts
// it.
func (c *Client) CreateDagRun(ctx context.Context, in api.DagRunCreateInput) (api.DagRunDetails, error) {
	return doRequest[api.DagRunDetails](ctx, c, "CreateDagRun",
		http.MethodPost, c.url(api.EndpointDagRunCreate, ""), in, c.userHeader())
}

// ListDagRuns lists DAG runs of the caller, the most recent first.
func (c *Client) ListDagRuns(ctx context.Context) ([]api.DagRunSummary, error) {
	return doRequest[[]api.DagRunSummary](ctx, c, "ListDagRuns",
		http.MethodGet, c.url(api.EndpointDagRunList, ""), nil, c.userHeader())
}

// DagRunStats returns number of DAG runs by status in caller's tenant.
func (c *Client) DagRunStats(ctx context.Context) (api.DagRunStats, error) {
	return doRequest[api.DagRunStats](ctx, c, "DagRunStats",
		http.MethodGet, c.url(api.EndpointDagRunStats, ""), nil, c.userHeader())
}

// GetDagRun returns DAG run details including its status stack.
func (c *Client) GetDagRun(ctx context.Context, runId string) (api.DagRunDetails, error) {
	return doRequest[api.DagRunDetails](ctx, c, "GetDagRun",
		http.MethodGet, c.url(api.EndpointDagRunDetails, runId), nil,
		c.userHeader())
}

// CheckStatusFinish checks whether DAG run is finished.
func (c *Client) CheckStatusFinish(ctx context.Context, runId string) (api.DagRunStatusOutput, error) {
	return doRequest[api.DagRunStatusOutput](ctx, c, "CheckStatusFinish",
		http.MethodGet, c.url(api.EndpointDagRunCheckFinish, runId), nil,
		c.userHeader())
}

// StartDagRun signals the executor to start DAG run.
func (c *Client) StartDagRun(ctx context.Context, runId string) (api.DagRunStatusOutput, error) {
	return doRequest[api.DagRunStatusOutput](ctx, c, "StartDagRun",
		http.MethodPost, c.url(api.EndpointDagRunStart, runId), nil,
		c.userHeader())
}

// ResetDagRun resets DAG run into pending status with empty status stack.
func (c *Client) ResetDagRun(ctx context.Context, runId string) (api.DagRunStatusOutput, error) {
	return doRequest[api.DagRunStatusOutput](ctx, c, "ResetDagRun",
		http.MethodPost, c.url(api.EndpointDagRunReset, runId), nil,
		c.userHeader())
}

// UpdateTaskStatus posts task status callback for DAG run of given tenant.
// It's meant to be used by executors.
func (c *Client) UpdateTaskStatus(
	ctx context.Context, tenant, runId string, in api.TaskStatusUpdateInput,
) (api.DagRunStatusOutput, error) {
	callbackUrl := c.url(api.EndpointDagRunCallback, runId) + "?" +
		auth.TenantQueryParam + "=" + url.QueryEscape(tenant)
	return c.PostCallback(ctx, callbackUrl, in)
}

// PostCallback sends task status to the callback URL received in
// StartRequest. Base URL of the Client is not used.
func (c *Client) PostCallback(
	ctx context.Context, callbackUrl string, in api.TaskStatusUpdateInput,
) (api.DagRunStatusOutput, error) {
	header := http.Header{}
	if c.config.CallbackToken != "" {
		header.Set(auth.CallbackTokenHeader, c.config.CallbackToken)
	}
	return doRequest[api.DagRunStatusOutput](ctx, c, "UpdateTaskStatus",
		http.MethodPut, callbackUrl, in, header)
}

func doRequest[T any](
	ctx context.Context, c *Client, name, method, url string, body any,
	header http.Header,
) (T, error) {
	start := time.Now()
	c.logger.Debug("Start request", "request", name, "url", url)
	result, err := httpDoJSON[T](ctx, c.httpClient, method, url, body, header)
	if err != nil {
		var cErr *ClientError
		if !errors.As(err, &cErr) && !errors.Is(err, syscall.ECONNREFUSED) {
			c.logger.Error("Error while making request", "request", name,
				"err", err.Error())
		}
		return result, err
	}
	c.logger.Debug("Request finished", "request", name, "duration",
		time.Since(start))
	return result, nil
}

func (c *Client) url(endpoint api.EndpointID, runId string) string {
	return c.routes[endpoint].Url(c.trackerUrl, runId)
}

func (c *Client) userHeader() http.Header {
	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}
	return header
}
