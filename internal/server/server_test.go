package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/boltstore"
	"github.com/nfrund/scriptdesk/internal/jobclient"
	"github.com/nfrund/scriptdesk/internal/lifecycle"
	"github.com/nfrund/scriptdesk/internal/permission"
	"github.com/nfrund/scriptdesk/internal/script"
	"github.com/nfrund/scriptdesk/internal/storage"
	"github.com/nfrund/scriptdesk/internal/testutils"
	"github.com/nfrund/scriptdesk/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	// --- Setup ---
	e := echo.New()

	// 1. Capture log output
	var logBuffer bytes.Buffer
	handler := slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{
		AddSource: true,
	})
	logger := slog.New(handler)
	// Store the original default logger and defer its restoration
	originalLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(originalLogger)

	// 2. Set up the error handler we want to test
	setupErrorHandling(e)

	// 3. Define a route that will always produce an unhandled error
	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})

	// --- Act ---
	req := httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	// --- Assert ---
	require.Equal(t, http.StatusInternalServerError, rec.Code, "Expected a 500 Internal Server Error response")
	assert.JSONEq(t, `{"code":"INTERNAL","message":"internal error"}`, rec.Body.String())

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)", "Log message should indicate an unhandled error")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"", "Log should contain the original error message")
	assert.Contains(t, logOutput, "stack_trace=", "Log must contain the stack_trace field")
	assert.Contains(t, logOutput, "runtime/debug/stack.go", "Stack trace should originate from the debug package")
}

// newTestServer wires the full stack on a temp bolt database, an in-memory
// file store and the local orchestrator.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("SUPERUSERS", "root")
	t.Setenv("WATCH_STREAM_INTERVAL", "20ms")
	cfg := testutils.ConfigForTests(t)

	db, err := boltstore.Open(cfg.GetBoltPath())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.New("")
	local := workflow.NewLocal(script.NewFactory(time.Second), store, cfg.GetOutputDir())
	t.Cleanup(func() { local.Close() })

	jobs := jobclient.New(local, store, cfg)
	coord := lifecycle.New(db.Scripts(), db.Documents(), permission.NewGate(db.Documents()), jobs)
	return New(cfg, coord)
}

type client struct {
	t    *testing.T
	s    *Server
	user string
}

func (c client) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var body string
	if form != nil {
		body = form.Encode()
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
	}
	rec := httptest.NewRecorder()
	c.s.E.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := client{t: t, s: s}.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestSpark_RequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	rec := client{t: t, s: s}.do(http.MethodGet, "/spark/scripts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication required", decode[map[string]string](t, rec)["message"])
}

func TestScriptLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := client{t: t, s: s, user: "alice"}
	bob := client{t: t, s: s, user: "bob"}

	// Save never submits.
	form := url.Values{
		"name":             {"w1"},
		"script":           {`log("hello " .. vars["who"]) emit("out.txt", props["k"])`},
		"language":         {`"lua"`},
		"parameters":       {`["-n"]`},
		"resources":        {`[]`},
		"hadoopProperties": {`[{"name":"k","value":"v"}]`},
	}
	rec := alice.do(http.MethodPost, "/spark/save", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)

	rec = alice.do(http.MethodGet, "/spark/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// Run submits once and links the job.
	form.Set("id", id)
	form.Set("submissionVariables", `{"who":"world"}`)
	rec = alice.do(http.MethodPost, "/spark/run", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[map[string]string](t, rec)
	assert.Equal(t, id, run["id"])
	require.True(t, strings.HasPrefix(run["watchUrl"], "/spark/watch/"), run["watchUrl"])

	var snap lifecycle.Snapshot
	require.Eventually(t, func() bool {
		rec := alice.do(http.MethodGet, run["watchUrl"], nil)
		if rec.Code != http.StatusOK {
			return false
		}
		snap = lifecycle.Snapshot{}
		return json.Unmarshal(rec.Body.Bytes(), &snap) == nil && snap.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "SUCCEEDED", string(snap.Workflow.Status))
	assert.Equal(t, 100, snap.Workflow.Progress)
	assert.False(t, snap.Workflow.IsRunning)
	assert.Contains(t, strings.Join(snap.Logs, "\n"), "hello world")
	assert.True(t, strings.HasPrefix(snap.Output, "/filebrowser/view/"), snap.Output)

	// Other users cannot watch or stop it.
	rec = bob.do(http.MethodGet, run["watchUrl"], nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Stopping a finished job is rejected by the orchestrator and changes nothing.
	rec = alice.do(http.MethodPost, "/spark/stop", url.Values{"id": {id}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "REMOTE_ERROR", decode[map[string]string](t, rec)["code"])

	rec = alice.do(http.MethodGet, run["watchUrl"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[lifecycle.Snapshot](t, rec)
	assert.Equal(t, snap.Workflow, again.Workflow)

	rec = alice.do(http.MethodGet, "/spark/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[[]map[string]any](t, rec)
	require.Len(t, dash, 1)
	assert.Equal(t, id, dash[0]["scriptId"])
	assert.Equal(t, "w1", dash[0]["scriptName"])

	// Run scripts are no longer drafts.
	rec = alice.do(http.MethodGet, "/spark/scripts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// Copy.
	rec = alice.do(http.MethodPost, "/spark/copy", url.Values{"id": {id}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cp := decode[map[string]any](t, rec)
	assert.NotEqual(t, id, cp["id"])
	assert.Equal(t, "w1 (Copy)", cp["name"])
	assert.Equal(t, "lua", cp["language"])
	assert.Equal(t, []any{"-n"}, cp["parameters"])

	rec = bob.do(http.MethodPost, "/spark/copy", url.Values{"id": {id}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Delete swallows unknown ids.
	copyID := cp["id"].(string)
	rec = alice.do(http.MethodPost, "/spark/delete", url.Values{"ids": {copyID + ",B"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ids":["`+copyID+`","B"]}`, rec.Body.String())

	rec = alice.do(http.MethodGet, "/spark/scripts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	// Superusers see every script.
	rec = client{t: t, s: s, user: "root"}.do(http.MethodGet, "/spark/scripts?design=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestSpark_PostOnly(t *testing.T) {
	s := newTestServer(t)
	alice := client{t: t, s: s, user: "alice"}

	for _, path := range []string{"/spark/save", "/spark/run", "/spark/stop", "/spark/copy", "/spark/delete"} {
		rec := alice.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}

	rec := alice.do(http.MethodGet, "/spark/install_examples", nil)
	assert.JSONEq(t, `{"status":-1,"message":"A POST request is required."}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/spark/install_examples", nil)
	req.Header.Set("X-Remote-User", "alice")
	req.Header.Set("Accept-Language", "de")
	rec = httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"status":-1,"message":"Eine POST-Anfrage ist erforderlich."}`, rec.Body.String())
}
