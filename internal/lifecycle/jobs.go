package lifecycle

import (
	"context"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/logging"
	"github.com/nfrund/scriptdesk/internal/permission"
	"github.com/nfrund/scriptdesk/internal/pubsub"
)

// WorkflowView is the job part of a snapshot.
type WorkflowView struct {
	JobID     string             `json:"job_id"`
	Status    domain.JobStatus   `json:"status"`
	Progress  int                `json:"progress"`
	IsRunning bool               `json:"isRunning"`
	KillURL   string             `json:"killUrl"`
	RerunURL  string             `json:"rerunUrl"`
	Actions   []domain.JobAction `json:"actions"`
}

// Snapshot is the current state of a job as reported by the orchestrator.
type Snapshot struct {
	Workflow WorkflowView `json:"workflow"`
	Logs     []string     `json:"logs"`
	// Output links to the job's output directory, empty when there is none.
	Output string `json:"output"`
}

// Terminal reports whether the job can no longer change.
func (s *Snapshot) Terminal() bool {
	return s.Workflow.Status.Terminal()
}

// Watch reads the job's status, log and output. It never writes anything.
func (c *Coordinator) Watch(ctx context.Context, user *domain.User, jobID string) (*Snapshot, error) {
	if err := requireUser("lifecycle.Watch", user); err != nil {
		return nil, err
	}
	if jobID == "" {
		return nil, domain.Invalid("lifecycle.Watch", "missing job id")
	}

	job, err := c.jobs.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := permission.CanAccessJob(user, job); err != nil {
		return nil, err
	}
	logs, err := c.jobs.Log(ctx, jobID)
	if err != nil {
		return nil, err
	}

	actions := job.Actions
	if actions == nil {
		actions = []domain.JobAction{}
	}
	if logs == nil {
		logs = []string{}
	}

	return &Snapshot{
		Workflow: WorkflowView{
			JobID:     job.ID,
			Status:    job.Status,
			Progress:  job.Progress(),
			IsRunning: job.IsRunning(),
			KillURL:   c.links.KillURL(job.ID),
			RerunURL:  c.links.RerunURL(job.ID, job.AppPath),
			Actions:   actions,
		},
		Logs:   logs,
		Output: c.jobs.ResolveOutputLink(c.jobs.OutputPath(ctx, job)),
	}, nil
}

// Stop kills the script's current job and returns a fresh snapshot of it.
func (c *Coordinator) Stop(ctx context.Context, user *domain.User, scriptID string) (*Snapshot, error) {
	const op = "lifecycle.Stop"
	if err := requireUser(op, user); err != nil {
		return nil, err
	}

	s, err := c.scripts.Get(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if !s.Submitted() {
		return nil, domain.Invalid(op, "the script has not been run")
	}

	job, err := c.jobs.Job(ctx, s.JobID)
	if err != nil {
		return nil, err
	}
	if err := permission.CanAccessJob(user, job); err != nil {
		return nil, err
	}
	if err := permission.CanModifyJob(user, job); err != nil {
		return nil, err
	}

	if err := c.jobs.Stop(ctx, job.ID); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Failed to stop job", "event", "job_stop_failed", "job_id", job.ID, "error", err)
		return nil, err
	}

	logging.FromContext(ctx).InfoContext(ctx, "Job stopped", "event", "job_stopped", "script_id", s.ID, "job_id", job.ID)
	publish(ctx, c, pubsub.JobStopped, user, pubsub.JobEvent{ScriptID: s.ID, JobID: job.ID, Status: string(domain.JobKilled)})

	return c.Watch(ctx, user, job.ID)
}
