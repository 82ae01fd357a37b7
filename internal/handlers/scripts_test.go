package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/handlers"
	"github.com/nfrund/scriptdesk/internal/lifecycle"
	"github.com/nfrund/scriptdesk/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) Save(ctx context.Context, user *domain.User, attrs domain.ScriptAttrs) (*domain.Script, error) {
	args := m.Called(ctx, user, attrs)
	s, _ := args.Get(0).(*domain.Script)
	return s, args.Error(1)
}

func (m *mockLifecycle) Run(ctx context.Context, user *domain.User, attrs domain.ScriptAttrs, params map[string]string) (*lifecycle.RunResult, error) {
	args := m.Called(ctx, user, attrs, params)
	r, _ := args.Get(0).(*lifecycle.RunResult)
	return r, args.Error(1)
}

func (m *mockLifecycle) Stop(ctx context.Context, user *domain.User, scriptID string) (*lifecycle.Snapshot, error) {
	args := m.Called(ctx, user, scriptID)
	s, _ := args.Get(0).(*lifecycle.Snapshot)
	return s, args.Error(1)
}

func (m *mockLifecycle) Watch(ctx context.Context, user *domain.User, jobID string) (*lifecycle.Snapshot, error) {
	args := m.Called(ctx, user, jobID)
	s, _ := args.Get(0).(*lifecycle.Snapshot)
	return s, args.Error(1)
}

func (m *mockLifecycle) Copy(ctx context.Context, user *domain.User, id string) (*domain.Script, error) {
	args := m.Called(ctx, user, id)
	s, _ := args.Get(0).(*domain.Script)
	return s, args.Error(1)
}

func (m *mockLifecycle) Delete(ctx context.Context, user *domain.User, ids []string) *lifecycle.DeleteReport {
	return m.Called(ctx, user, ids).Get(0).(*lifecycle.DeleteReport)
}

func (m *mockLifecycle) List(ctx context.Context, user *domain.User, designOnly bool) ([]*domain.Script, error) {
	args := m.Called(ctx, user, designOnly)
	s, _ := args.Get(0).([]*domain.Script)
	return s, args.Error(1)
}

func (m *mockLifecycle) Dashboard(ctx context.Context, user *domain.User) ([]lifecycle.DashboardJob, error) {
	args := m.Called(ctx, user)
	j, _ := args.Get(0).([]lifecycle.DashboardJob)
	return j, args.Error(1)
}

var alice = &domain.User{Username: "alice"}

// newServer wires the handler the way the server does. Requests carrying
// X-Test-User are signed in as alice.
func newServer(t *testing.T) (*echo.Echo, *mockLifecycle) {
	t.Helper()
	lc := &mockLifecycle{}
	t.Cleanup(func() { lc.AssertExpectations(t) })

	h := handlers.NewScriptHandler(lc, 10*time.Millisecond)
	e := echo.New()
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.HTTPErrorHandler
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Test-User") != "" {
				c.Set(middleware.UserContextKey, alice)
			}
			return next(c)
		}
	})

	g := e.Group("/spark")
	g.GET("/scripts", h.Scripts)
	g.GET("/dashboard", h.Dashboard)
	g.Any("/save", h.Save, middleware.RequirePost)
	g.Any("/run", h.Run, middleware.RequirePost)
	g.Any("/stop", h.Stop, middleware.RequirePost)
	g.Any("/copy", h.Copy, middleware.RequirePost)
	g.Any("/delete", h.Delete, middleware.RequirePost)
	g.Any("/install_examples", h.InstallExamples)
	g.GET("/watch/:job_id", h.Watch)
	g.GET("/watch/:job_id/stream", h.WatchStream)
	return e, lc
}

func do(e *echo.Echo, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	req.Header.Set("X-Test-User", "alice")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var er handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er
}

func strPtr(s string) *string { return &s }

func TestSave(t *testing.T) {
	e, lc := newServer(t)

	want := domain.ScriptAttrs{
		Name:       strPtr("w1"),
		Body:       strPtr("print(1)"),
		Language:   strPtr("python"),
		Parameters: []string{"-n", "10"},
		Properties: map[string]string{"mapred.job.queue.name": "etl"},
	}
	lc.On("Save", mock.Anything, alice, want).Return(&domain.Script{ID: "s1"}, nil).Once()

	rec := do(e, http.MethodPost, "/spark/save", url.Values{
		"name":             {"w1"},
		"script":           {"print(1)"},
		"language":         {`"python"`},
		"parameters":       {`[{"type":"argument","value":"-n"},"10"]`},
		"hadoopProperties": {`[{"name":"mapred.job.queue.name","value":"etl"}]`},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"s1"}`, rec.Body.String())
}

func TestSave_Errors(t *testing.T) {
	e, lc := newServer(t)

	t.Run("non-POST is an invalid request", func(t *testing.T) {
		rec := do(e, http.MethodGet, "/spark/save", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
	})

	t.Run("malformed list", func(t *testing.T) {
		rec := do(e, http.MethodPost, "/spark/save", url.Values{"name": {"w"}, "parameters": {"not json"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "parameters must be a JSON list", decodeError(t, rec).Message)
	})

	t.Run("domain errors keep their status", func(t *testing.T) {
		lc.On("Save", mock.Anything, alice, mock.Anything).
			Return(nil, domain.Denied("test", "you do not have permission to modify this script")).Once()

		rec := do(e, http.MethodPost, "/spark/save", url.Values{"id": {"s2"}, "name": {"w"}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, handlers.ErrorResponse{Code: "PERMISSION_DENIED", Message: "you do not have permission to modify this script"}, decodeError(t, rec))
	})

	t.Run("anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/spark/save", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRun(t *testing.T) {
	e, lc := newServer(t)

	lc.On("Run", mock.Anything, alice,
		mock.MatchedBy(func(a domain.ScriptAttrs) bool { return a.ID == "s1" && *a.Body == "print(1)" }),
		map[string]string{"date": "2024-01-01"}).
		Return(&lifecycle.RunResult{ID: "s1", WatchURL: "/spark/watch/job-1", JobID: "job-1"}, nil).Once()

	rec := do(e, http.MethodPost, "/spark/run", url.Values{
		"id":                  {"s1"},
		"name":                {"w1"},
		"script":              {"print(1)"},
		"language":            {"python"},
		"submissionVariables": {`[{"name":"date","value":"2024-01-01"}]`},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"s1","watchUrl":"/spark/watch/job-1"}`, rec.Body.String())

	lc.On("Run", mock.Anything, alice, mock.Anything, map[string]string{}).
		Return(nil, domain.NewError(domain.ErrSubmission, "test", "failed to submit script", nil)).Once()
	rec = do(e, http.MethodPost, "/spark/run", url.Values{"id": {"s1"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "SUBMISSION_FAILED", decodeError(t, rec).Code)
}

func snapshot(status domain.JobStatus) *lifecycle.Snapshot {
	job := &domain.Job{ID: "job-1", Status: status}
	return &lifecycle.Snapshot{
		Workflow: lifecycle.WorkflowView{
			JobID:     "job-1",
			Status:    status,
			Progress:  job.Progress(),
			IsRunning: job.IsRunning(),
			KillURL:   "/oozie/manage_oozie_jobs/job-1/kill",
			RerunURL:  "/oozie/rerun_oozie_job/job-1?app_path=%2Fws",
			Actions:   []domain.JobAction{},
		},
		Logs: []string{},
	}
}

func TestStopAndWatch(t *testing.T) {
	e, lc := newServer(t)

	lc.On("Stop", mock.Anything, alice, "s1").Return(snapshot(domain.JobKilled), nil).Once()
	rec := do(e, http.MethodPost, "/spark/stop", url.Values{"id": {"s1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"workflow": {"job_id":"job-1","status":"KILLED","progress":100,"isRunning":false,
			"killUrl":"/oozie/manage_oozie_jobs/job-1/kill","rerunUrl":"/oozie/rerun_oozie_job/job-1?app_path=%2Fws","actions":[]},
		"logs": [],
		"output": ""
	}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/spark/stop", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	lc.On("Watch", mock.Anything, alice, "job-1").Return(snapshot(domain.JobRunning), nil).Once()
	rec = do(e, http.MethodGet, "/spark/watch/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isRunning":true`)

	lc.On("Watch", mock.Anything, alice, "nope").Return(nil, domain.NotFound("test", "job not found", nil)).Once()
	rec = do(e, http.MethodGet, "/spark/watch/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handlers.ErrorResponse{Code: "NOT_FOUND", Message: "job not found"}, decodeError(t, rec))
}

func TestWatchStream(t *testing.T) {
	e, lc := newServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	lc.On("Watch", mock.Anything, alice, "job-1").Return(snapshot(domain.JobRunning), nil).Once()
	lc.On("Watch", mock.Anything, alice, "job-1").Return(snapshot(domain.JobSucceeded), nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/spark/watch/job-1/stream", &websocket.DialOptions{
		HTTPHeader: http.Header{"X-Test-User": {"alice"}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	var first, second lifecycle.Snapshot
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, domain.JobRunning, first.Workflow.Status)
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, domain.JobSucceeded, second.Workflow.Status)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestCopy(t *testing.T) {
	e, lc := newServer(t)

	lc.On("Copy", mock.Anything, alice, "s1").Return(&domain.Script{
		ID: "s2", Name: "w1 (Copy)", Body: "print(1)", Language: "python",
		Properties: map[string]string{"b": "2", "a": "1"}, IsDesign: true,
	}, nil).Once()

	rec := do(e, http.MethodPost, "/spark/copy", url.Values{"id": {"s1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"s2","name":"w1 (Copy)","script":"print(1)","parameters":[],"resources":[],
		"hadoopProperties":[{"name":"a","value":"1"},{"name":"b","value":"2"}],"language":"python"}`, rec.Body.String())
}

func TestDelete(t *testing.T) {
	e, lc := newServer(t)

	report := func() *lifecycle.DeleteReport {
		return &lifecycle.DeleteReport{
			IDs:     []string{"A", "B"},
			Results: []lifecycle.DeleteResult{{ID: "A", Deleted: true}, {ID: "B", Error: "script not found"}},
		}
	}
	lc.On("Delete", mock.Anything, alice, []string{"A", "B"}).Return(report()).Once()
	lc.On("Delete", mock.Anything, alice, []string{"A", "B"}).Return(report()).Once()

	rec := do(e, http.MethodPost, "/spark/delete", url.Values{"ids": {"A,B"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ids":["A","B"]}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/spark/delete", url.Values{"ids": {"A,B"}, "detail": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ids":["A","B"],"results":[{"id":"A","deleted":true},{"id":"B","deleted":false,"error":"script not found"}]}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/spark/delete", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScriptsAndDashboard(t *testing.T) {
	e, lc := newServer(t)

	lc.On("List", mock.Anything, alice, true).Return([]*domain.Script{{ID: "s1", Name: "w1", IsDesign: true}}, nil).Once()
	lc.On("List", mock.Anything, alice, false).Return([]*domain.Script{}, nil).Once()

	rec := do(e, http.MethodGet, "/spark/scripts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"s1","name":"w1","script":"","parameters":[],"resources":[],"hadoopProperties":[],"language":"","isDesign":true}]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/spark/scripts?design=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/spark/scripts?design=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	lc.On("Dashboard", mock.Anything, alice).Return([]lifecycle.DashboardJob{
		{Job: &domain.Job{ID: "job-1", AppName: "scriptdesk", Status: domain.JobRunning, User: "alice", Actions: []domain.JobAction{}}, IsRunning: true, ScriptID: "s1", ScriptName: "w1"},
	}, nil).Once()
	rec = do(e, http.MethodGet, "/spark/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0]["id"])
	assert.Equal(t, "s1", jobs[0]["scriptId"])
	assert.Equal(t, true, jobs[0]["isRunning"])
}

func TestInstallExamples(t *testing.T) {
	e, _ := newServer(t)

	rec := do(e, http.MethodPost, "/spark/install_examples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":0,"message":""}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/spark/install_examples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":-1,"message":"A POST request is required."}`, rec.Body.String())
}
