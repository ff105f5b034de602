package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webforge/internal/config"
	"webforge/internal/provider"
	"webforge/internal/session"
	"webforge/internal/store"
	"webforge/internal/stream"
	"webforge/internal/types"
)

const testKey = "test-key"

// scriptedClient always answers with one fenced HTML body.
type scriptedClient struct{}

func (scriptedClient) Complete(ctx context.Context, msgs []types.Message, opts provider.Options) (*provider.Completion, error) {
	return &provider.Completion{Content: "```\n<html><body>generated page</body></html>\n```"}, nil
}

func (scriptedClient) CompleteStream(ctx context.Context, msgs []types.Message, opts provider.Options) (<-chan string, <-chan error) {
	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	chunks <- "```\n<html><body>generated page</body></html>\n```"
	close(chunks)
	return chunks, errs
}

func (scriptedClient) Name() string  { return "scripted" }
func (scriptedClient) Model() string { return "scripted-model" }

// failingClient rejects every call with one provider error kind.
type failingClient struct {
	kind provider.Kind
}

func (f failingClient) Complete(ctx context.Context, msgs []types.Message, opts provider.Options) (*provider.Completion, error) {
	return nil, &provider.Error{Kind: f.kind, Provider: f.Name(), Attempts: 1, Err: context.DeadlineExceeded}
}

func (f failingClient) CompleteStream(ctx context.Context, msgs []types.Message, opts provider.Options) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	close(chunks)
	errs <- &provider.Error{Kind: f.kind, Provider: f.Name(), Attempts: 1, Err: context.DeadlineExceeded}
	return chunks, errs
}

func (failingClient) Name() string  { return "failing" }
func (failingClient) Model() string { return "failing-model" }

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	return newTestServerWithClient(t, scriptedClient{})
}

func newTestServerWithClient(t *testing.T, client provider.Client) (*Server, *session.Manager) {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.APIKey = testKey
	wsCfg := config.DefaultWorkspaceConfig()
	wsCfg.Root = t.TempDir()

	bus := stream.NewBus()
	manager := session.NewManager(wsCfg.SessionTTL)
	executor := session.NewExecutor(client, bus, store.NopSink{}, session.ExecutorConfig{
		Budget:       wsCfg.SessionBudget,
		MinFileBytes: wsCfg.MinFileBytes,
	})
	return New(cfg, wsCfg, manager, executor, bus), manager
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createProject(t *testing.T, srv *Server, description string) createProjectResponse {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/agent/create-project",
		map[string]string{"description": description}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp createProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "dev", body["version"])
	assert.Contains(t, body, "uptime")
}

func TestMissingKeyRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/sessions", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "unauthorized", e.Error)
}

func TestCreateProjectSynchronousSummary(t *testing.T) {
	srv, manager := newTestServer(t)

	resp := createProject(t, srv, "simple landing page with a hero and a contact form")
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.ProjectID)
	assert.Equal(t, types.PhaseCompleted, resp.Phase)
	require.NotNil(t, resp.Summary)
	assert.ElementsMatch(t, []string{"index.html", "style.css", "script.js"}, resp.Summary.CreatedFiles)
	assert.Equal(t, 0, resp.Summary.FailedSteps)

	// Session is visible via both session and project id.
	rec := doRequest(t, srv, http.MethodGet, "/api/sessions/"+resp.SessionID, nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/"+resp.ProjectID, nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	sess, err := manager.Get(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCompleted, sess.Phase())

	// Files endpoint lists the generated tree.
	rec = doRequest(t, srv, http.MethodGet, "/api/agent/projects/"+resp.ProjectID+"/files", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "index.html")

	// And serves a single file by path, with its size.
	rec = doRequest(t, srv, http.MethodGet, "/api/agent/projects/"+resp.ProjectID+"/files?filePath=index.html", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var file map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &file))
	assert.Equal(t, "index.html", file["filePath"])
	assert.Contains(t, file["content"], "generated page")
	assert.Equal(t, float64(len("<html><body>generated page</body></html>")), file["size"])
}

func TestCreateProjectStreamingReturnsEarly(t *testing.T) {
	srv, manager := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/create-project",
		map[string]interface{}{"description": "landing page", "streaming": true}, true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp createProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Summary)
	assert.Contains(t, resp.StreamURL, resp.SessionID)

	sess, err := manager.Get(resp.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.Phase().Terminal() }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.PhaseCompleted, sess.Phase())
}

func TestCreateProjectUpstreamFailureMapsTo502(t *testing.T) {
	srv, _ := newTestServerWithClient(t, failingClient{kind: provider.KindAuth})

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/create-project",
		map[string]string{"description": "landing page"}, true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "auth", e.Error)
}

func TestCreateProjectValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/create-project",
		map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/agent/create-project",
		map[string]string{"bogus": "field"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/sessions/nope", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/agent/projects/nope/cancel", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := createProject(t, srv, "landing page")

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/api/agent/projects/"+resp.ProjectID+"/cancel", nil, true)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())
	}
}

func TestContinueProjectReturnsResults(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := createProject(t, srv, "landing page")

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/continue-project",
		map[string]string{"projectId": resp.ProjectID, "instruction": "add a dark-mode toggle"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cont continueProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cont))
	assert.Equal(t, resp.ProjectID, cont.ProjectID)
	assert.Equal(t, types.PhaseCompleted, cont.Phase)
	require.NotEmpty(t, cont.Results)

	var paths []string
	for _, r := range cont.Results {
		assert.Equal(t, types.ActionModified, r.Action)
		paths = append(paths, r.Path)
	}
	assert.ElementsMatch(t, []string{"script.js", "style.css"}, paths)
}

func TestContinueProjectConflictWhileActive(t *testing.T) {
	srv, manager := newTestServer(t)
	resp := createProject(t, srv, "landing page")

	// Register a fresh non-terminal session for the same workspace so
	// the project counts as active.
	prev, err := manager.Get(resp.SessionID)
	require.NoError(t, err)
	_, err = manager.Create("held open", "", prev.Workspace, true)
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/continue-project",
		map[string]string{"projectId": resp.ProjectID, "instruction": "another change"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestContinueProjectValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/continue-project",
		map[string]string{"projectId": "p-only"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/agent/continue-project",
		map[string]string{"projectId": "unknown", "instruction": "x"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetModeConflictsAfterStart(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := createProject(t, srv, "react dashboard")

	// Mode flip on a started session conflicts.
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/"+resp.SessionID+"/mode",
		map[string]string{"mode": "PLAN"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Invalid mode value is a 400.
	rec = doRequest(t, srv, http.MethodPost, "/api/sessions/"+resp.SessionID+"/mode",
		map[string]string{"mode": "THINK"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	createProject(t, srv, "landing page")

	rec := doRequest(t, srv, http.MethodPost, "/api/agent/cleanup",
		map[string]int{"olderThanHours": 0}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	// TTL default is 24h, the fresh session survives.
	assert.JSONEq(t, `{"cleaned":0,"remaining":1}`, rec.Body.String())
}

func TestSessionEventsSSE(t *testing.T) {
	srv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	resp := createProject(t, srv, "landing page")

	req, err := http.NewRequest(http.MethodGet, httpSrv.URL+"/api/agent/sessions/"+resp.SessionID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var saw []string
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			saw = append(saw, strings.TrimPrefix(line, "event: "))
		}
	}
	assert.Contains(t, saw, string(types.EventTaskStarted))
	assert.Contains(t, saw, string(types.EventTaskCompleted))
	assert.Equal(t, "complete", saw[len(saw)-1])
}
