// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tracker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docai/core/api"
	"github.com/docai/core/auth"
	"github.com/docai/core/dagrun"
)

const kindUnauthorized = "unauthorized"

var errorKinds = map[string]error{
	"validation":      dagrun.ErrValidation,
	"not_found":       dagrun.ErrNotFound,
	"invalid_state":   dagrun.ErrInvalidState,
	"executor_signal": dagrun.ErrExecutorSignal,
	"persistence":     dagrun.ErrPersistence,
}

// Handler returns HTTP handler with all tracker endpoints registered. User
// endpoints are authenticated with given Authenticator, callback endpoint
// resolves tenant from the request. When metricsHandler is not nil, it's
// served on metrics endpoint.
func (t *Tracker) Handler(authn *auth.Authenticator, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	t.registerEndpoints(mux, authn, metricsHandler)
	return mux
}

// Register HTTP server endpoints for the Tracker.
func (t *Tracker) registerEndpoints(mux *http.ServeMux, authn *auth.Authenticator, metricsHandler http.Handler) {
	r := api.Routes()
	rp := func(e api.EndpointID) string {
		return r[e].RoutePattern
	}
	user := func(h http.HandlerFunc) http.Handler {
		return authn.Middleware(t.withTimeout(h), t.writeAuthError)
	}

	// /api/v1/dag_runs
	mux.Handle(rp(api.EndpointDagRunCreate), user(t.createHandler))
	mux.Handle(rp(api.EndpointDagRunList), user(t.listHandler))
	mux.Handle(rp(api.EndpointDagRunStats), user(t.statsHandler))

	// /api/v1/dag_runs/{id}/*
	mux.Handle(rp(api.EndpointDagRunDetails), user(t.detailsHandler))
	mux.Handle(rp(api.EndpointDagRunCheckFinish), user(t.checkFinishHandler))
	mux.Handle(rp(api.EndpointDagRunStart), user(t.startHandler))
	mux.Handle(rp(api.EndpointDagRunReset), user(t.resetHandler))
	mux.Handle(rp(api.EndpointDagRunCallback), t.withTimeout(t.callbackHandler))

	// /metrics
	if metricsHandler != nil {
		mux.Handle(rp(api.EndpointMetrics), metricsHandler)
	}
}

func (t *Tracker) withTimeout(h http.HandlerFunc) http.HandlerFunc {
	if t.config.RequestTimeout <= 0 {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), t.config.RequestTimeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}

// httpStatus maps error kind onto HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, dagrun.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, dagrun.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dagrun.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, dagrun.ErrExecutorSignal):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (t *Tracker) writeError(w http.ResponseWriter, err error, runId string) {
	status := httpStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	t.logger.Log(context.Background(), level, "Request failed", "status",
		status, "runId", runId, "err", err)
	out := api.ErrorOutput{
		Kind:    dagrun.KindOf(err),
		Message: err.Error(),
		RunId:   runId,
	}
	if encErr := encode(w, status, out); encErr != nil {
		t.logger.Error("Cannot encode error output", "err", encErr)
	}
}

func (t *Tracker) writeAuthError(w http.ResponseWriter, err error) {
	out := api.ErrorOutput{Kind: kindUnauthorized, Message: err.Error()}
	if encErr := encode(w, http.StatusUnauthorized, out); encErr != nil {
		t.logger.Error("Cannot encode error output", "err", encErr)
	}
}
