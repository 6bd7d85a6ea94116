package tracker

import (
	"context"

	"github.com/docai/core/api"
)

// API defines the DAG run tracker HTTP API. Client implements this
// interface.
type API interface {
	CreateDagRun(context.Context, api.DagRunCreateInput) (api.DagRunDetails, error)
	ListDagRuns(context.Context) ([]api.DagRunSummary, error)
	DagRunStats(context.Context) (api.DagRunStats, error)
	GetDagRun(context.Context, string) (api.DagRunDetails, error)
	CheckStatusFinish(context.Context, string) (api.DagRunStatusOutput, error)
	StartDagRun(context.Context, string) (api.DagRunStatusOutput, error)
	ResetDagRun(context.Context, string) (api.DagRunStatusOutput, error)
	UpdateTaskStatus(context.Context, string, string, api.TaskStatusUpdateInput) (api.DagRunStatusOutput, error)
}
