package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leappipe/internal/engine"
	"github.com/leapstack-labs/leappipe/internal/state"
	"github.com/leapstack-labs/leappipe/internal/testutil"
	"github.com/leapstack-labs/leappipe/internal/work"
	"github.com/leapstack-labs/leappipe/pkg/core"
)

const chainJSON = `{
  "nodes": [
    {"id": "A", "nodeType": {"id": "1", "name": "Data Source"}, "label": "A"},
    {"id": "B", "nodeType": {"id": "2", "name": "Transformer"}, "label": "B"},
    {"id": "C", "nodeType": {"id": "4", "name": "Sink"}, "label": "C"}
  ],
  "edges": [{"source": "A", "target": "B"}, {"source": "B", "target": "C"}]
}`

type fixture struct {
	srv        *httptest.Server
	controller *engine.Controller
	store      *state.SQLiteStore
}

func setup(t *testing.T, unit core.WorkUnit) *fixture {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	store := state.NewSQLiteStore(logger)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())

	controller := engine.New(engine.Config{
		WorkUnit: unit,
		Logger:   logger,
		OnFinish: state.NewRecorder(store, logger).RunFinished,
	})

	srv := httptest.NewServer(New(Config{Controller: controller, Store: store, Logger: logger}).Router())
	t.Cleanup(func() {
		srv.Close()
		controller.Reset()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, controller.Wait(ctx))
		_ = store.Close()
	})
	return &fixture{srv: srv, controller: controller, store: store}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (f *fixture) get(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.controller.Wait(ctx))
}

func TestValidateEndpoint(t *testing.T) {
	f := setup(t, work.NewInstant(1))

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantValid bool
	}{
		{"valid", chainJSON, http.StatusOK, true},
		{"empty", `{"nodes":[],"edges":[]}`, http.StatusOK, false},
		{"yaml body", "nodes:\n  - {id: s, nodeType: Data Source, label: s}\n", http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.post(t, "/api/pipeline/validate", tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantValid, out["isValid"])
		})
	}

	resp, out := f.post(t, "/api/pipeline/validate", `{"nodes": [`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "invalid pipeline")
}

func TestOrderEndpoint(t *testing.T) {
	f := setup(t, work.NewInstant(1))

	resp, out := f.post(t, "/api/pipeline/order", chainJSON)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"A", "B", "C"}, out["order"])

	cyclic := `{"nodes":[{"id":"a"},{"id":"b"}],"edges":[{"source":"a","target":"b"},{"source":"b","target":"a"}]}`
	resp, out = f.post(t, "/api/pipeline/order", cyclic)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, out["error"], "cycle")
}

func TestCheckEdgeEndpoint(t *testing.T) {
	f := setup(t, work.NewInstant(1))

	edges := `"edges":[{"source":"a","target":"b"},{"source":"b","target":"c"}]`
	tests := []struct {
		name, body string
		wantCode   int
		allowed    any
	}{
		{"forward", `{` + edges + `,"source":"a","target":"c"}`, http.StatusOK, true},
		{"closes loop", `{` + edges + `,"source":"c","target":"a"}`, http.StatusOK, false},
		{"self", `{"edges":[],"source":"a","target":"a"}`, http.StatusOK, false},
		{"missing target", `{"edges":[],"source":"a"}`, http.StatusBadRequest, nil},
		{"unknown field", `{"edges":[],"source":"a","target":"b","extra":1}`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.post(t, "/api/edges/check", tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.allowed, out["allowed"])
		})
	}
}

func TestExecuteLifecycle(t *testing.T) {
	f := setup(t, work.NewInstant(1))

	resp, out := f.post(t, "/api/pipeline/execute", chainJSON)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, out, "state")
	f.wait(t)

	var st StateResponse
	f.get(t, "/api/pipeline/state", &st)
	assert.Equal(t, "idle", st.Phase)
	assert.Equal(t, []string{"A", "B", "C"}, st.State.CompletedNodes)
	assert.Len(t, st.Statuses, 3)

	var runs []core.Run
	f.get(t, "/api/runs", &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, core.RunStatusCompleted, runs[0].Status)

	var detail RunResponse
	resp = f.get(t, "/api/runs/"+runs[0].ID, &detail)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, detail.Logs, 8)

	var missing map[string]any
	resp = f.get(t, "/api/runs/nope", &missing)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, out = f.post(t, "/api/pipeline/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out["state"].(map[string]any)["logs"])
}

func TestExecuteRejections(t *testing.T) {
	release := make(chan struct{})
	unit := work.Func(func(ctx context.Context, _ core.PipelineNode) (core.WorkResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return core.WorkResult{}, nil
	})
	f := setup(t, unit)

	resp, out := f.post(t, "/api/pipeline/execute", `{"nodes":[{"id":"t","nodeType":{"id":"2","name":"Transformer"}}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, out["validation"].(map[string]any)["isValid"])

	resp, _ = f.post(t, "/api/pipeline/execute", chainJSON)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, out = f.post(t, "/api/pipeline/execute", chainJSON)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, engine.ErrAlreadyRunning.Error(), out["error"])

	resp, out = f.post(t, "/api/pipeline/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopping", out["phase"])

	close(release)
	f.wait(t)
	assert.Equal(t, engine.MsgStopped, lastLog(f.controller).Message)
}

func TestRunsWithoutStore(t *testing.T) {
	controller := engine.New(engine.Config{WorkUnit: work.NewInstant(1)})
	srv := httptest.NewServer(New(Config{Controller: controller}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCatalogRoutes(t *testing.T) {
	f := setup(t, work.NewInstant(1))

	var types []core.NodeType
	resp := f.get(t, "/api/nodes", &types)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, types, 4)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var health map[string]string
	f.get(t, "/health", &health)
	assert.Equal(t, "healthy", health["status"])
}

func TestEventsStream(t *testing.T) {
	f := setup(t, work.NewInstant(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/pipeline/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 256)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// initial state event
	waitForLine(t, lines, "datastar-patch-signals")

	_, _ = f.post(t, "/api/pipeline/execute", chainJSON)
	waitForLine(t, lines, "Pipeline execution completed successfully")
}

func waitForLine(t *testing.T, lines <-chan string, substr string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before %q", substr)
			if strings.Contains(line, substr) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", substr)
		}
	}
}

func lastLog(c *engine.Controller) core.ExecutionLog {
	logs := c.Snapshot().Logs
	return logs[len(logs)-1]
}
