// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tracker

import (
	"context"

	"github.com/docai/core/payload"
)

// StartRequest is sent to the executor when DAG run is started.
type StartRequest struct {
	RunId       string
	Tenant      string
	DagName     string
	Params      payload.Value
	CallbackUrl string
}

// Signaler notifies external executor that DAG run should be started.
// Implementations should be idempotent for the same RunId, because the
// executor might be signalled again when previous signal result was lost.
type Signaler interface {
	Signal(ctx context.Context, req StartRequest) error
}

// SignalerFunc is an adapter to use ordinary functions as Signaler.
type SignalerFunc func(ctx context.Context, req StartRequest) error

// Signal calls f(ctx, req).
func (f SignalerFunc) Signal(ctx context.Context, req StartRequest) error {
	return f(ctx, req)
}
