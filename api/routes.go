// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package api provides information about the DAG run tracker HTTP endpoints
// and types of their inputs and outputs.
package api

import (
	"fmt"
	"net/url"
)

// Identifier for tracker server endpoints.
type EndpointID int

const (
	// Endpoint for creating new DAG run. Unless skipped, the run is also
	// reset and started.
	EndpointDagRunCreate EndpointID = iota

	// Endpoint returns DAG runs of the caller, the most recent first.
	EndpointDagRunList

	// Endpoint returns number of DAG runs by status within caller's tenant.
	EndpointDagRunStats

	// Endpoint returns DAG run details including its status stack.
	EndpointDagRunDetails

	// Endpoint checks whether DAG run is finished.
	EndpointDagRunCheckFinish

	// Endpoint for executor callbacks with task status updates.
	EndpointDagRunCallback

	// Endpoint signals the executor to start DAG run.
	EndpointDagRunStart

	// Endpoint resets DAG run into its initial state.
	EndpointDagRunReset

	// Endpoint exposes Prometheus metrics.
	EndpointMetrics
)

// Endpoint contains information about an HTTP endpoint. UrlSuffix may contain
// a single %s verb for DAG run id.
type Endpoint struct {
	RoutePattern string
	UrlSuffix    string
}

// Url builds full URL of the endpoint for given base URL and DAG run id.
func (e Endpoint) Url(baseUrl, runId string) string {
	if runId == "" {
		return baseUrl + e.UrlSuffix
	}
	return baseUrl + fmt.Sprintf(e.UrlSuffix, url.PathEscape(runId))
}

// Routes for all tracker server endpoints.
func Routes() map[EndpointID]Endpoint {
	return map[EndpointID]Endpoint{
		// /api/v1/dag_runs
		EndpointDagRunCreate: {"POST /api/v1/dag_runs", "/api/v1/dag_runs"},
		EndpointDagRunList:   {"GET /api/v1/dag_runs", "/api/v1/dag_runs"},
		EndpointDagRunStats:  {"GET /api/v1/dag_runs/stats", "/api/v1/dag_runs/stats"},

		// /api/v1/dag_runs/{id}/*
		EndpointDagRunDetails: {"GET /api/v1/dag_runs/{id}", "/api/v1/dag_runs/%s"},
		EndpointDagRunCheckFinish: {
			"GET /api/v1/dag_runs/{id}/check_status_finish",
			"/api/v1/dag_runs/%s/check_status_finish",
		},
		EndpointDagRunCallback: {"PUT /api/v1/dag_runs/{id}", "/api/v1/dag_runs/%s"},
		EndpointDagRunStart:    {"POST /api/v1/dag_runs/{id}/start", "/api/v1/dag_runs/%s/start"},
		EndpointDagRunReset:    {"POST /api/v1/dag_runs/{id}/reset", "/api/v1/dag_runs/%s/reset"},

		// /metrics
		EndpointMetrics: {"GET /metrics", "/metrics"},
	}
}
