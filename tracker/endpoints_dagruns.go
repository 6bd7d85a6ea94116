// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tracker

import (
	"context"
	"net/http"

	"github.com/docai/core/api"
	"github.com/docai/core/auth"
	"github.com/docai/core/dagrun"
	"github.com/docai/core/timeutils"
)

func (t *Tracker) createHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	in, decodeErr := decode[api.DagRunCreateInput](r)
	if decodeErr != nil {
		t.writeError(w, dagrun.Validationf("create", "%s", decodeErr), "")
		return
	}
	if vErr := in.Validate(); vErr != nil {
		t.writeError(w, dagrun.Validationf("create", "%s", vErr), "")
		return
	}

	run, err := t.Create(r.Context(), CreateParams{
		Tenant: identity.Tenant,
		Owner: dagrun.Owner{
			Id: identity.OwnerId, Type: identity.OwnerType,
		},
		DagName:   in.DagName,
		Params:    in.Params,
		ChatbotId: in.ChatbotId,
		SkipStart: in.SkipStart,
	})
	if err != nil {
		runId := ""
		if run != nil {
			runId = run.Id
		}
		t.writeError(w, err, runId)
		return
	}
	t.encodeOrLog(w, http.StatusCreated, toDagRunDetails(run))
}

func (t *Tracker) listHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	runs, err := t.List(r.Context(), identity.Tenant, identity.OwnerId)
	if err != nil {
		t.writeError(w, err, "")
		return
	}
	out := make([]api.DagRunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, toDagRunSummary(run))
	}
	t.encodeOrLog(w, http.StatusOK, out)
}

func (t *Tracker) statsHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	counts, err := t.Stats(r.Context(), identity.Tenant)
	if err != nil {
		t.writeError(w, err, "")
		return
	}
	out := api.DagRunStats{
		Tenant:   identity.Tenant,
		ByStatus: make(map[string]int, len(counts)),
	}
	for status, cnt := range counts {
		out.ByStatus[status.String()] = cnt
		out.Total += cnt
	}
	t.encodeOrLog(w, http.StatusOK, out)
}

func (t *Tracker) detailsHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	runId := r.PathValue("id")
	run, err := t.getOwned(r.Context(), identity, runId)
	if err != nil {
		t.writeError(w, err, runId)
		return
	}
	t.encodeOrLog(w, http.StatusOK, toDagRunDetails(run))
}

func (t *Tracker) checkFinishHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	runId := r.PathValue("id")
	fc, err := t.CheckFinished(r.Context(), identity.Tenant, runId)
	if err == nil && fc.OwnerId != identity.OwnerId {
		err = dagrun.NotFound("check_status_finish", runId)
	}
	if err != nil {
		t.writeError(w, err, runId)
		return
	}
	t.encodeOrLog(w, http.StatusOK, api.DagRunStatusOutput{
		RunId:    fc.RunId,
		Status:   fc.Status.String(),
		Accepted: fc.Accepted,
		Finished: fc.Finished,
	})
}

func (t *Tracker) startHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	runId := r.PathValue("id")
	if _, err := t.getOwned(r.Context(), identity, runId); err != nil {
		t.writeError(w, err, runId)
		return
	}
	run, err := t.Start(r.Context(), identity.Tenant, runId)
	if err != nil {
		t.writeError(w, err, runId)
		return
	}
	t.encodeOrLog(w, http.StatusOK, toStatusOutput(run))
}

func (t *Tracker) resetHandler(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	runId := r.PathValue("id")
	if _, err := t.getOwned(r.Context(), identity, runId); err != nil {
		t.writeError(w, err, runId)
		return
	}
	run, err := t.Reset(r.Context(), identity.Tenant, runId)
	if err != nil {
		t.writeError(w, err, runId)
		return
	}
	t.encodeOrLog(w, http.StatusOK, toStatusOutput(run))
}

// callbackHandler merges task status posted by the executor. It's not
// authenticated by user tokens, tenant is taken from the request.
func (t *Tracker) callbackHandler(w http.ResponseWriter, r *http.Request) {
	const op = "record_task_update"
	runId := r.PathValue("id")
	if !auth.CheckCallbackToken(r, t.config.CallbackToken) {
		t.writeAuthError(w, auth.ErrInvalidToken)
		return
	}
	tenant := auth.CallbackTenant(r)
	if tenant == "" {
		t.writeError(w, dagrun.Validationf(op, "tenant is required"), runId)
		return
	}
	in, decodeErr := decode[api.TaskStatusUpdateInput](r)
	if decodeErr != nil {
		t.writeError(w, dagrun.Validationf(op, "%s", decodeErr), runId)
		return
	}
	if vErr := in.Validate(); vErr != nil {
		t.writeError(w, dagrun.Validationf(op, "%s", vErr), runId)
		return
	}
	function := ""
	if in.Function != nil {
		function = *in.Function
	}
	run, err := t.RecordTaskUpdate(r.Context(), tenant, runId, TaskUpdate{
		TaskName: in.TaskName,
		Content:  in.Content,
		Function: function,
	})
	if err != nil {
		t.writeError(w, err, runId)
		return
	}
	t.encodeOrLog(w, http.StatusOK, toStatusOutput(run))
}

// getOwned reads DAG run and checks that it belongs to the caller. DAG runs
// of other owners are reported as not found.
func (t *Tracker) getOwned(ctx context.Context, identity auth.Identity, runId string) (*dagrun.DagRun, error) {
	run, err := t.Get(ctx, identity.Tenant, runId)
	if err != nil {
		return nil, err
	}
	if run.Owner.Id != identity.OwnerId {
		return nil, dagrun.NotFound("get", runId)
	}
	return run, nil
}

func (t *Tracker) encodeOrLog(w http.ResponseWriter, status int, v any) {
	if err := encode(w, status, v); err != nil {
		t.logger.Error("Cannot encode response", "err", err)
	}
}

func toDagRunSummary(run *dagrun.DagRun) api.DagRunSummary {
	return api.DagRunSummary{
		RunId:     run.Id,
		DagName:   string(run.DagName),
		Status:    run.Status().String(),
		Accepted:  run.Accepted(),
		OwnerId:   run.Owner.Id,
		OwnerType: run.Owner.Type,
		ChatbotId: run.ChatbotId,
		CreatedAt: timeutils.ToString(run.CreatedAt),
		UpdatedAt: timeutils.ToString(run.UpdatedAt),
	}
}

func toDagRunDetails(run *dagrun.DagRun) api.DagRunDetails {
	entries := run.Entries()
	stack := make([]api.TaskStatus, 0, len(entries))
	for _, e := range entries {
		ts := api.TaskStatus{
			TaskName:   e.TaskName,
			Content:    e.Content,
			ReceivedAt: timeutils.ToString(e.ReceivedAt),
		}
		if e.Function != "" {
			fn := e.Function
			ts.Function = &fn
		}
		stack = append(stack, ts)
	}
	return api.DagRunDetails{
		DagRunSummary: toDagRunSummary(run),
		Tenant:        run.Tenant,
		Params:        run.Params,
		Finished:      run.CheckStatusFinish(),
		StatusStack:   stack,
	}
}

func toStatusOutput(run *dagrun.DagRun) api.DagRunStatusOutput {
	return api.DagRunStatusOutput{
		RunId:    run.Id,
		Status:   run.Status().String(),
		Accepted: run.Accepted(),
		Finished: run.CheckStatusFinish(),
	}
}
