package jobclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/storage"
	"github.com/nfrund/scriptdesk/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) Submit(ctx context.Context, sub *domain.Submission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

func (m *mockOrchestrator) Kill(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *mockOrchestrator) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *mockOrchestrator) Log(ctx context.Context, jobID string) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

func (m *mockOrchestrator) Jobs(ctx context.Context, filter workflow.JobFilter) ([]*domain.Job, error) {
	args := m.Called(ctx, filter)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Error(1)
}

func newTestClient(t *testing.T, timeout time.Duration) (*Client, *mockOrchestrator, *storage.AferoStore) {
	t.Helper()
	orch := &mockOrchestrator{}
	store := storage.New("")
	cfg := &config.Config{WorkspaceDir: "/ws", OrchestratorTimeout: timeout}
	c := New(orch, store, cfg)
	c.now = func() time.Time { return time.Unix(0, 42) }
	t.Cleanup(func() { orch.AssertExpectations(t) })
	return c, orch, store
}

func readFile(t *testing.T, store storage.Store, p string) string {
	t.Helper()
	rc, err := store.Get(context.Background(), p)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

var testScript = &domain.Script{
	ID:         "s1",
	Owner:      "alice",
	Name:       "w1",
	Body:       `log("hi")`,
	Language:   "tengo",
	Parameters: []string{"a"},
	Properties: map[string]string{"mapred.job.queue.name": "etl"},
}

func TestClient_Submit(t *testing.T) {
	c, orch, store := newTestClient(t, time.Second)
	user := &domain.User{Username: "alice"}

	orch.On("Submit", mock.Anything, mock.MatchedBy(func(sub *domain.Submission) bool {
		return sub.User == "alice" &&
			sub.AppPath == "/ws/alice/scriptdesk-s1-42" &&
			sub.AppName == workflow.AppName &&
			sub.Body == testScript.Body &&
			sub.Variables["date"] == "today"
	})).Return("job-1", nil).Once()

	id, err := c.Submit(context.Background(), user, testScript, map[string]string{"date": "today"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	assert.Equal(t, `log("hi")`, readFile(t, store, "/ws/alice/scriptdesk-s1-42/script.tengo"))
	assert.Contains(t, readFile(t, store, "/ws/alice/scriptdesk-s1-42/workflow.xml"), "<exec>script.tengo</exec>")
}

func TestClient_SubmitFailure(t *testing.T) {
	c, orch, _ := newTestClient(t, time.Second)
	orch.On("Submit", mock.Anything, mock.Anything).Return("", errors.New("connection refused")).Once()

	_, err := c.Submit(context.Background(), &domain.User{Username: "alice"}, testScript, nil)
	assert.ErrorIs(t, err, domain.ErrSubmission)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClient_SubmitTimeout(t *testing.T) {
	c, orch, _ := newTestClient(t, 20*time.Millisecond)
	orch.On("Submit", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Once()

	start := time.Now()
	_, err := c.Submit(context.Background(), &domain.User{Username: "alice"}, testScript, nil)
	assert.ErrorIs(t, err, domain.ErrSubmission)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Stop(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"ok", nil, nil},
		{"unknown job", domain.NotFound("workflow.Oozie.Kill", "job not found", nil), domain.ErrNotFound},
		{"rejected", domain.NewError(domain.ErrRemote, "workflow.Oozie.Kill", "Job is not running", nil), domain.ErrRemote},
		{"transport", errors.New("EOF"), domain.ErrRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, orch, _ := newTestClient(t, time.Second)
			orch.On("Kill", mock.Anything, "job-1").Return(tt.err).Once()

			err := c.Stop(context.Background(), "job-1")
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_StatusAndLog(t *testing.T) {
	c, orch, _ := newTestClient(t, time.Second)
	job := &domain.Job{ID: "job-1", Status: domain.JobRunning, Actions: []domain.JobAction{{Name: "script", Status: "RUNNING"}}}
	orch.On("Job", mock.Anything, "job-1").Return(job, nil).Once()
	orch.On("Log", mock.Anything, "job-1").Return("one\ntwo\n", nil).Once()

	report, err := c.StatusAndLog(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Same(t, job, report.Job)
	assert.Equal(t, []string{"one", "two"}, report.Logs)
	assert.Equal(t, job.Actions, report.Actions)
}

func TestClient_StatusAndLogNotFound(t *testing.T) {
	c, orch, _ := newTestClient(t, time.Second)
	orch.On("Job", mock.Anything, "nope").Return(nil, domain.NotFound("workflow.Local.Job", "job not found", nil)).Once()

	_, err := c.StatusAndLog(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_LogFailureIsRemote(t *testing.T) {
	c, orch, _ := newTestClient(t, time.Second)
	orch.On("Log", mock.Anything, "job-1").Return("", errors.New("connection reset")).Once()

	_, err := c.Log(context.Background(), "job-1")
	assert.ErrorIs(t, err, domain.ErrRemote)
}

func TestClient_OutputPath(t *testing.T) {
	ctx := context.Background()
	c, _, store := newTestClient(t, time.Second)
	_, err := store.Save(ctx, "/out/job-1/part-00000", strings.NewReader("x"))
	require.NoError(t, err)

	assert.Equal(t, "/out/job-1", c.OutputPath(ctx, &domain.Job{Conf: map[string]string{workflow.ConfWorkflowRoot: "/out/job-1"}}))
	assert.Empty(t, c.OutputPath(ctx, &domain.Job{Conf: map[string]string{workflow.ConfWorkflowRoot: "/out/job-2"}}))
	assert.Empty(t, c.OutputPath(ctx, &domain.Job{}))

	assert.Equal(t, "/filebrowser/view/out/job-1", c.ResolveOutputLink("/out/job-1"))
	assert.Empty(t, c.ResolveOutputLink(""))
}

func TestClient_List(t *testing.T) {
	c, orch, _ := newTestClient(t, time.Second)
	jobs := []*domain.Job{{ID: "job-1"}}
	orch.On("Jobs", mock.Anything, workflow.JobFilter{User: "alice", AppName: workflow.AppName, Len: DefaultListLen}).Return(jobs, nil).Once()
	orch.On("Jobs", mock.Anything, workflow.JobFilter{AppName: workflow.AppName, Len: DefaultListLen}).Return(jobs, nil).Once()

	got, err := c.List(context.Background(), &domain.User{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, jobs, got)

	_, err = c.List(context.Background(), &domain.User{Username: "root", Superuser: true})
	require.NoError(t, err)
}
