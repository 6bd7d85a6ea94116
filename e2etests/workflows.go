// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package e2etests

import (
	"context"
	"errors"
	"time"

	"github.com/docai/core/exec"
	"github.com/docai/core/payload"
)

func waitStep(name string, d time.Duration) exec.Step {
	return exec.Step{
		TaskName: name,
		Function: "fn_" + name,
		Run: func(ctx context.Context, _ exec.StepInput) (payload.Value, error) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return payload.NullValue(), ctx.Err()
			}
			return payload.MustFromAny(map[string]any{"task": name}), nil
		},
	}
}

func failingStep(name string) exec.Step {
	return exec.Step{
		TaskName: name,
		Run: func(context.Context, exec.StepInput) (payload.Value, error) {
			return payload.NullValue(), errors.New("cannot parse document")
		},
	}
}

func testWorkflows() exec.Workflows {
	return exec.Workflows{
		"etl_pipeline": {
			waitStep("extract", time.Millisecond),
			waitStep("transform", time.Millisecond),
			waitStep("load", time.Millisecond),
		},
		"broken_etl": {
			waitStep("extract", time.Millisecond),
			failingStep("transform"),
			waitStep("load", time.Millisecond),
		},
	}
}
