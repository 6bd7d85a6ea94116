package exec

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/goleak"

	"github.com/docai/core/api"
	"github.com/docai/core/pace"
	"github.com/docai/core/payload"
	"github.com/docai/core/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// callbackRecorder is a fake tracker callback endpoint.
type callbackRecorder struct {
	sync.Mutex
	updates  []api.TaskStatusUpdateInput
	failNext int
}

func (cr *callbackRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cr.Lock()
	defer cr.Unlock()
	if r.URL.Query().Get("subdomain") == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if cr.failNext > 0 {
		cr.failNext--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var in api.TaskStatusUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cr.updates = append(cr.updates, in)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.DagRunStatusOutput{
		RunId: r.PathValue("id"), Status: "running",
	})
}

func (cr *callbackRecorder) tasks() []api.TaskStatusUpdateInput {
	cr.Lock()
	defer cr.Unlock()
	return append([]api.TaskStatusUpdateInput{}, cr.updates...)
}

func testLogger() *slog.Logger {
	opts := slog.HandlerOptions{Level: slog.LevelWarn}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

func okStep(name string) Step {
	return Step{
		TaskName: name,
		Function: "fn_" + name,
		Run: func(_ context.Context, in StepInput) (payload.Value, error) {
			return payload.MustFromAny(map[string]any{
				"step": name, "seen": float64(len(in.Results)),
			}), nil
		},
	}
}

func testWorkflows() Workflows {
	return Workflows{
		"etl_pipeline": {okStep("extract"), okStep("transform"), okStep("load")},
		"broken": {
			okStep("extract"),
			{TaskName: "transform", Run: func(context.Context, StepInput) (payload.Value, error) {
				return payload.NullValue(), errors.New("bad row 7")
			}},
			okStep("load"),
		},
		"panicking": {
			{TaskName: "boom", Run: func(context.Context, StepInput) (payload.Value, error) {
				panic("nil map")
			}},
		},
	}
}

type execEnv struct {
	executor *Executor
	recorder *callbackRecorder
	server   *httptest.Server
}

func newExecEnv(t *testing.T, cfg Config) execEnv {
	t.Helper()
	recorder := &callbackRecorder{}
	mux := http.NewServeMux()
	mux.Handle("PUT /api/v1/dag_runs/{id}", recorder)
	server := httptest.NewServer(mux)

	httpClient := &http.Client{
		Timeout:   time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	client := tracker.NewClient(server.URL, httpClient, testLogger(),
		tracker.DefaultClientConfig)
	cfg.CallbackPace = func() pace.Strategy { return pace.NewFixed(time.Millisecond) }
	e := New(testWorkflows(), client, cfg, testLogger())
	t.Cleanup(func() {
		e.Close()
		server.Close()
	})
	return execEnv{executor: e, recorder: recorder, server: server}
}

func (env execEnv) request(runId, dagName string) tracker.StartRequest {
	return tracker.StartRequest{
		RunId:       runId,
		Tenant:      "acme",
		DagName:     dagName,
		Params:      payload.MustFromAny(map[string]any{"doc": "a.pdf"}),
		CallbackUrl: env.server.URL + "/api/v1/dag_runs/" + runId + "?subdomain=acme",
	}
}

func TestExecutorRunsStepsInOrder(t *testing.T) {
	env := newExecEnv(t, DefaultConfig)
	err := env.executor.Signal(context.Background(),
		env.request("run-1", "etl_pipeline"))
	if err != nil {
		t.Fatalf("Cannot signal executor: %s", err.Error())
	}
	env.executor.Wait()

	updates := env.recorder.tasks()
	if len(updates) != 3 {
		t.Fatalf("Expected 3 callbacks, got: %d", len(updates))
	}
	for idx, name := range []string{"extract", "transform", "load"} {
		u := updates[idx]
		if u.TaskName != name {
			t.Errorf("Expected task %s at %d, got: %s", name, idx, u.TaskName)
		}
		if u.Function == nil || *u.Function != "fn_"+name {
			t.Errorf("Unexpected function for %s: %v", name, u.Function)
		}
		ok, _ := u.Content.Get("ok")
		if b, _ := ok.AsBool(); !b {
			t.Errorf("Expected ok=true for %s, got: %s", name, u.Content)
		}
		result, _ := u.Content.Get("result")
		seen, _ := result.Get("seen")
		if n, _ := seen.AsNumber(); n != float64(idx) {
			t.Errorf("Expected step %s to see %d results, got: %v", name, idx, n)
		}
	}
	if env.executor.Running() != 0 {
		t.Errorf("Expected no running DAG runs, got: %d",
			env.executor.Running())
	}
}

func TestExecutorStopsAfterFailure(t *testing.T) {
	env := newExecEnv(t, DefaultConfig)
	if err := env.executor.Trigger(env.request("run-1", "broken")); err != nil {
		t.Fatalf("Cannot trigger DAG run: %s", err.Error())
	}
	env.executor.Wait()

	updates := env.recorder.tasks()
	if len(updates) != 2 {
		t.Fatalf("Expected 2 callbacks, got: %d", len(updates))
	}
	errVal, _ := updates[1].Content.Get("error")
	if s, _ := errVal.AsString(); s != "bad row 7" {
		t.Errorf("Expected error message in content, got: %s",
			updates[1].Content)
	}
}

func TestExecutorContinueOnFailure(t *testing.T) {
	cfg := DefaultConfig
	cfg.ContinueOnFailure = true
	env := newExecEnv(t, cfg)
	if err := env.executor.Trigger(env.request("run-1", "broken")); err != nil {
		t.Fatalf("Cannot trigger DAG run: %s", err.Error())
	}
	env.executor.Wait()
	if n := len(env.recorder.tasks()); n != 3 {
		t.Errorf("Expected 3 callbacks, got: %d", n)
	}
}

func TestExecutorRecoversFromPanic(t *testing.T) {
	env := newExecEnv(t, DefaultConfig)
	if err := env.executor.Trigger(env.request("run-1", "panicking")); err != nil {
		t.Fatalf("Cannot trigger DAG run: %s", err.Error())
	}
	env.executor.Wait()
	updates := env.recorder.tasks()
	if len(updates) != 1 {
		t.Fatalf("Expected single callback, got: %d", len(updates))
	}
	errVal, _ := updates[0].Content.Get("error")
	if s, _ := errVal.AsString(); s != "panic: nil map" {
		t.Errorf("Unexpected error content: %s", updates[0].Content)
	}
}

func TestExecutorRetriesCallbacks(t *testing.T) {
	env := newExecEnv(t, DefaultConfig)
	env.recorder.failNext = 3
	if err := env.executor.Trigger(env.request("run-1", "etl_pipeline")); err != nil {
		t.Fatalf("Cannot trigger DAG run: %s", err.Error())
	}
	env.executor.Wait()
	if n := len(env.recorder.tasks()); n != 3 {
		t.Errorf("Expected all 3 callbacks delivered, got: %d", n)
	}
}

func TestExecutorTriggerErrors(t *testing.T) {
	env := newExecEnv(t, DefaultConfig)

	err := env.executor.Trigger(env.request("run-1", "unknown"))
	if !errors.Is(err, ErrUnknownDag) {
		t.Errorf("Expected ErrUnknownDag, got: %v", err)
	}

	req := env.request("run-2", "etl_pipeline")
	req.CallbackUrl = ""
	if err := env.executor.Trigger(req); err == nil {
		t.Error("Expected error for empty callback URL")
	}

	env.executor.Close()
	err = env.executor.Trigger(env.request("run-3", "etl_pipeline"))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got: %v", err)
	}
}

func TestExecutorRejectsDuplicateWhileExecuting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	wf := Workflows{
		"slow": {{TaskName: "wait", Run: func(ctx context.Context, _ StepInput) (payload.Value, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return payload.NullValue(), nil
		}}},
	}
	env := newExecEnv(t, DefaultConfig)
	env.executor.workflows = wf

	if err := env.executor.Trigger(env.request("run-1", "slow")); err != nil {
		t.Fatalf("Cannot trigger DAG run: %s", err.Error())
	}
	<-started
	err := env.executor.Trigger(env.request("run-1", "slow"))
	if !errors.Is(err, ErrAlreadyExecuting) {
		t.Errorf("Expected ErrAlreadyExecuting, got: %v", err)
	}
	if sErr := env.executor.Signal(context.Background(), env.request("run-1", "slow")); sErr != nil {
		t.Errorf("Expected Signal to ignore duplicates, got: %s", sErr.Error())
	}
	close(release)
	env.executor.Wait()

	// finished DAG run can be triggered again
	if err := env.executor.Trigger(env.request("run-1", "etl_pipeline")); err != nil {
		t.Errorf("Expected DAG run to be triggered again, got: %s", err.Error())
	}
	env.executor.Wait()
}

func TestWorkflowsCatalog(t *testing.T) {
	catalog := testWorkflows().Catalog()
	def, ok := catalog.Lookup("etl_pipeline")
	if !ok {
		t.Fatal("Expected etl_pipeline in catalog")
	}
	if len(def.Tasks) != 3 || def.Tasks[2] != "load" {
		t.Errorf("Unexpected declared tasks: %v", def.Tasks)
	}
}
