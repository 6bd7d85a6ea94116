// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package exec

import (
	"crypto/subtle"
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/docai/core/airflow"
	"github.com/docai/core/tracker"
)

type triggerResponse struct {
	DagId    string `json:"dag_id"`
	DagRunId string `json:"dag_run_id"`
	State    string `json:"state"`
}

type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
}

// Handler serves Airflow DAG trigger endpoint, so the executor can be
// signalled by airflow.Client.
func (e *Executor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(airflow.TriggerRoutePattern, e.triggerHandler)
	return mux
}

func (e *Executor) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if !e.checkBasicAuth(r) {
		writeProblem(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	dagName := r.PathValue("dag")
	var in airflow.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.DagRunId == "" {
		writeProblem(w, http.StatusBadRequest, "dag_run_id is required")
		return
	}
	err := e.Trigger(tracker.StartRequest{
		RunId:       in.DagRunId,
		Tenant:      in.Conf.Tenant,
		DagName:     dagName,
		Params:      in.Conf.Params,
		CallbackUrl: in.Conf.CallbackUrl,
	})
	switch {
	case errors.Is(err, ErrUnknownDag):
		writeProblem(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrAlreadyExecuting):
		writeProblem(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, ErrClosed):
		writeProblem(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(triggerResponse{
		DagId: dagName, DagRunId: in.DagRunId, State: "queued",
	})
}

func (e *Executor) checkBasicAuth(r *http.Request) bool {
	if e.config.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOk := subtle.ConstantTimeCompare([]byte(user), []byte(e.config.Username)) == 1
	passOk := subtle.ConstantTimeCompare([]byte(pass), []byte(e.config.Password)) == 1
	return userOk && passOk
}

func writeProblem(w http.ResponseWriter, status int, title string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem{Title: title, Status: status})
}
