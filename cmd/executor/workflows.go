package main

import (
	"context"
	"errors"
	"time"

	"github.com/docai/core/exec"
	"github.com/docai/core/payload"
)

func sampleWorkflows() exec.Workflows {
	return exec.Workflows{
		"etl_pipeline": {
			{TaskName: "extract", Function: "extract_document", Run: sleepStep(time.Second)},
			{TaskName: "transform", Function: "transform_fields", Run: sleepStep(2 * time.Second)},
			{TaskName: "load", Function: "load_results", Run: sleepStep(time.Second)},
		},
		"ocr": {
			{TaskName: "ocr", Function: "run_ocr", Run: ocrStep},
		},
	}
}

func sleepStep(d time.Duration) exec.StepFunc {
	return func(ctx context.Context, in exec.StepInput) (payload.Value, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return payload.NullValue(), ctx.Err()
		}
		return payload.MustFromAny(map[string]any{
			"elapsed_ms": d.Milliseconds(),
		}), nil
	}
}

func ocrStep(_ context.Context, in exec.StepInput) (payload.Value, error) {
	doc, _ := in.Params.Get("document")
	name, isString := doc.AsString()
	if !isString || name == "" {
		return payload.NullValue(), errors.New("params.document is required")
	}
	return payload.MustFromAny(map[string]any{"document": name, "pages": 1}), nil
}
