package tracker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docai/core/dag"
	"github.com/docai/core/dagrun"
	"github.com/docai/core/db"
	"github.com/docai/core/metrics"
	"github.com/docai/core/notify"
	"github.com/docai/core/payload"
)

const testTenant = "acme"

var testOwner = dagrun.Owner{Id: "u1", Type: "user"}

func testLogger() *slog.Logger {
	opts := slog.HandlerOptions{Level: slog.LevelWarn}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

func testCatalog() dag.Registry {
	return dag.Registry{
		"etl_pipeline": {
			Id:    "etl_pipeline",
			Tasks: []string{"extract", "transform", "load"},
		},
		"ocr": {
			Id:    "ocr",
			Tasks: []string{"ocr"},
		},
	}
}

// recordingSignaler records start requests and fails while err is set.
type recordingSignaler struct {
	sync.Mutex
	requests []StartRequest
	err      error
}

func (rs *recordingSignaler) Signal(_ context.Context, req StartRequest) error {
	rs.Lock()
	defer rs.Unlock()
	if rs.err != nil {
		return rs.err
	}
	rs.requests = append(rs.requests, req)
	return nil
}

func (rs *recordingSignaler) setErr(err error) {
	rs.Lock()
	rs.err = err
	rs.Unlock()
}

func (rs *recordingSignaler) count() int {
	rs.Lock()
	defer rs.Unlock()
	return len(rs.requests)
}

type trackerEnv struct {
	tracker  *Tracker
	dbClient *db.Client
	signaler *recordingSignaler
	notes    *[]string
	metrics  *metrics.Metrics
}

func newTrackerEnv(t *testing.T, cfg Config) trackerEnv {
	t.Helper()
	dbClient, err := db.NewSqliteInMemoryClient(testLogger())
	if err != nil {
		t.Fatalf("Cannot create in-memory database: %s", err.Error())
	}
	t.Cleanup(func() { dbClient.Close() })

	notes := make([]string, 0)
	signaler := &recordingSignaler{}
	m := metrics.New(prometheus.NewRegistry())
	tr := New(
		NewDbRegistry(dbClient, testLogger()), signaler, testCatalog(), cfg,
		testLogger(), notify.NewMock(&notes), m,
	)
	return trackerEnv{
		tracker:  tr,
		dbClient: dbClient,
		signaler: signaler,
		notes:    &notes,
		metrics:  m,
	}
}

func createRun(t *testing.T, tr *Tracker, dagName string, skipStart bool) *dagrun.DagRun {
	t.Helper()
	run, err := tr.Create(context.Background(), CreateParams{
		Tenant:    testTenant,
		Owner:     testOwner,
		DagName:   dagName,
		Params:    payload.MustFromAny(map[string]any{"doc": "invoice.pdf"}),
		SkipStart: skipStart,
	})
	if err != nil {
		t.Fatalf("Cannot create DAG run: %s", err.Error())
	}
	return run
}

func recordTask(t *testing.T, tr *Tracker, runId, taskName string, content any) *dagrun.DagRun {
	t.Helper()
	run, err := tr.RecordTaskUpdate(context.Background(), testTenant, runId,
		TaskUpdate{TaskName: taskName, Content: payload.MustFromAny(content)})
	if err != nil {
		t.Fatalf("Cannot record update of task %s: %s", taskName, err.Error())
	}
	return run
}

var errExecutorDown = errors.New("executor is down")

var okContent = map[string]any{"ok": true}
var failedContent = map[string]any{"ok": false, "error": "timeout"}
