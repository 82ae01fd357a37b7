// Package jobclient adapts a workflow orchestrator and the file store to the
// operations the script lifecycle needs.
package jobclient

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/storage"
	"github.com/nfrund/scriptdesk/internal/workflow"
)

// DefaultListLen caps dashboard listings.
const DefaultListLen = 100

// Report is a job together with its log.
type Report struct {
	Job     *domain.Job
	Logs    []string
	Actions []domain.JobAction
}

// Client submits scripts and reads job state. Every orchestrator call is
// bounded by the configured timeout.
type Client struct {
	orch      workflow.Orchestrator
	store     storage.Store
	workspace string
	timeout   time.Duration
	now       func() time.Time
}

// New creates a job client.
func New(orch workflow.Orchestrator, store storage.Store, cfg config.Provider) *Client {
	return &Client{
		orch:      orch,
		store:     store,
		workspace: cfg.GetWorkspaceDir(),
		timeout:   cfg.GetOrchestratorTimeout(),
		now:       time.Now,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// DeployDir returns the workspace directory for one submission of s.
func (c *Client) DeployDir(user *domain.User, s *domain.Script) string {
	return path.Join(c.workspace, user.Username, fmt.Sprintf("scriptdesk-%s-%d", s.ID, c.now().UnixNano()))
}

// Submit deploys s with its workflow definition and starts a job. Any failure
// is a submission error.
func (c *Client) Submit(ctx context.Context, user *domain.User, s *domain.Script, params map[string]string) (string, error) {
	const op = "jobclient.Submit"

	sub := &domain.Submission{
		User:       user.Username,
		AppName:    workflow.AppName,
		AppPath:    c.DeployDir(user, s),
		ScriptID:   s.ID,
		Language:   s.Language,
		Body:       s.Body,
		Parameters: s.Parameters,
		Resources:  s.Resources,
		Properties: s.Properties,
		Variables:  params,
	}

	if err := c.deploy(ctx, sub); err != nil {
		return "", domain.NewError(domain.ErrSubmission, op, "failed to deploy script", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	jobID, err := c.orch.Submit(ctx, sub)
	if err != nil {
		return "", domain.NewError(domain.ErrSubmission, op, "failed to submit script", err)
	}

	slog.InfoContext(ctx, "Script submitted", "event", "script_submitted",
		"script_id", s.ID, "job_id", jobID, "app_path", sub.AppPath)
	return jobID, nil
}

func (c *Client) deploy(ctx context.Context, sub *domain.Submission) error {
	def, err := workflow.NewDefinition(sub).Marshal()
	if err != nil {
		return err
	}
	if _, err := c.store.Save(ctx, path.Join(sub.AppPath, "workflow.xml"), bytes.NewReader(def)); err != nil {
		return fmt.Errorf("failed to write workflow.xml: %w", err)
	}
	name := workflow.ScriptFile(sub.Language)
	if _, err := c.store.Save(ctx, path.Join(sub.AppPath, name), strings.NewReader(sub.Body)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Stop kills a job. Unknown jobs stay NotFound; every other failure is a
// remote error.
func (c *Client) Stop(ctx context.Context, jobID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.orch.Kill(ctx, jobID); err != nil {
		return remote("jobclient.Stop", "failed to stop job", err)
	}
	return nil
}

// Job fetches the orchestrator's view of a job.
func (c *Client) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	job, err := c.orch.Job(ctx, jobID)
	if err != nil {
		return nil, remote("jobclient.Job", "failed to fetch job", err)
	}
	return job, nil
}

// StatusAndLog fetches a job together with its log lines.
func (c *Client) StatusAndLog(ctx context.Context, jobID string) (*Report, error) {
	job, err := c.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	logs, err := c.Log(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Report{Job: job, Logs: logs, Actions: job.Actions}, nil
}

// Log fetches the job's log split into lines.
func (c *Client) Log(ctx context.Context, jobID string) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.orch.Log(ctx, jobID)
	if err != nil {
		return nil, remote("jobclient.Log", "failed to fetch job log", err)
	}
	return splitLines(raw), nil
}

// OutputPath returns the job's workflow root when it exists in the file
// store, otherwise "".
func (c *Client) OutputPath(ctx context.Context, job *domain.Job) string {
	root := job.Conf[workflow.ConfWorkflowRoot]
	if root == "" {
		return ""
	}
	ok, err := c.store.Exists(ctx, root)
	if err != nil {
		slog.WarnContext(ctx, "Failed to check job output", "event", "output_check_failed", "job_id", job.ID, "path", root, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return root
}

// ResolveOutputLink returns the file browser link for p.
func (c *Client) ResolveOutputLink(p string) string {
	return storage.OutputLink(p)
}

// List returns this application's jobs visible to user, newest first.
// Superusers see every user's jobs.
func (c *Client) List(ctx context.Context, user *domain.User) ([]*domain.Job, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	filter := workflow.JobFilter{AppName: workflow.AppName, Len: DefaultListLen}
	if !user.Superuser {
		filter.User = user.Username
	}
	jobs, err := c.orch.Jobs(ctx, filter)
	if err != nil {
		return nil, remote("jobclient.List", "failed to list jobs", err)
	}
	return jobs, nil
}

// remote keeps NotFound and Remote failures and turns everything else into ErrRemote.
func remote(op, message string, err error) error {
	switch domain.KindOf(err) {
	case domain.ErrNotFound, domain.ErrRemote:
		return err
	}
	return domain.NewError(domain.ErrRemote, op, message, err)
}

func splitLines(raw string) []string {
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, "\n")
}
