package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/script"
	"github.com/nfrund/scriptdesk/internal/storage"
)

// transitions lists the statuses a local job may move to from each status.
var transitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobPrep:    {domain.JobRunning, domain.JobKilled},
	domain.JobRunning: {domain.JobSucceeded, domain.JobFailed, domain.JobKilled},
}

// canTransition reports whether a job in status from may move to status to.
func canTransition(from, to domain.JobStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Local runs submitted scripts in-process through the script engines. Jobs
// live in memory only and are lost on restart.
type Local struct {
	engines   *script.Factory
	store     storage.Store
	outputDir string
	stamp     string
	now       func() time.Time

	mu    sync.RWMutex
	seq   int
	jobs  map[string]*localJob
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Orchestrator = (*Local)(nil)

type localJob struct {
	job    *domain.Job
	sub    *domain.Submission
	logs   []string
	cancel context.CancelFunc
}

// NewLocal creates a local orchestrator writing job output to outputDir in store.
func NewLocal(engines *script.Factory, store storage.Store, outputDir string) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Local{
		engines:   engines,
		store:     store,
		outputDir: outputDir,
		stamp:     fmt.Sprintf("%s%03d", now.Format("060102150405"), now.Nanosecond()/int(time.Millisecond)),
		now:       time.Now,
		jobs:      make(map[string]*localJob),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit registers a PREP job and starts it in the background.
func (l *Local) Submit(ctx context.Context, sub *domain.Submission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	l.seq++
	id := fmt.Sprintf("%07d-%s-local-W", l.seq, l.stamp)
	now := l.now()

	conf := submissionConf(sub)
	conf[ConfWorkflowRoot] = path.Join(l.outputDir, id)

	appName := sub.AppName
	if appName == "" {
		appName = AppName
	}
	runCtx, cancel := context.WithCancel(l.ctx)
	lj := &localJob{
		job: &domain.Job{
			ID:          id,
			AppName:     appName,
			AppPath:     sub.AppPath,
			User:        sub.User,
			Status:      domain.JobPrep,
			Conf:        conf,
			Actions:     NewDefinition(sub).Actions(id),
			CreatedTime: &now,
		},
		sub:    sub,
		cancel: cancel,
	}
	lj.logf(now, "INFO", "Job %s accepted for %s", id, sub.User)
	l.jobs[id] = lj
	l.order = append(l.order, id)
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(runCtx, id)

	slog.InfoContext(ctx, "Submitted local job", "event", "local_job_submitted", "job_id", id, "language", sub.Language)
	return id, nil
}

func (l *Local) run(ctx context.Context, id string) {
	defer l.wg.Done()

	l.mu.Lock()
	lj := l.jobs[id]
	if !canTransition(lj.job.Status, domain.JobRunning) {
		l.mu.Unlock()
		return
	}
	now := l.now()
	lj.job.Status = domain.JobRunning
	lj.job.StartTime = &now
	lj.job.Actions[0].Status = "RUNNING"
	lj.job.Actions[0].StartTime = &now
	lj.logf(now, "INFO", "Job %s started", id)
	sub := lj.sub
	root := lj.job.Conf[ConfWorkflowRoot]
	l.mu.Unlock()

	out, err := l.execute(ctx, sub, root)
	l.finish(id, out, err)
}

func (l *Local) execute(ctx context.Context, sub *domain.Submission, root string) (*script.Output, error) {
	engine, err := l.engines.Engine(sub.Language)
	if err != nil {
		return nil, err
	}
	out, err := engine.Run(ctx, &script.Program{
		Name:     sub.AppName,
		Language: engine.Language(),
		Source:   sub.Body,
	}, &script.Input{
		Args:       sub.Parameters,
		Vars:       sub.Variables,
		Properties: sub.Properties,
	})
	if err != nil {
		return nil, err
	}
	for _, f := range out.Files {
		if _, err := l.store.Save(ctx, path.Join(root, path.Clean("/"+f.Name)), strings.NewReader(f.Content)); err != nil {
			return out, fmt.Errorf("failed to write output %s: %w", f.Name, err)
		}
	}
	return out, nil
}

func (l *Local) finish(id string, out *script.Output, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lj := l.jobs[id]
	lj.cancel()
	now := l.now()

	var se *script.ScriptError
	switch {
	case out != nil:
		for _, line := range out.Logs {
			lj.logf(now, "INFO", "%s", line)
		}
	case errors.As(err, &se):
		for _, line := range se.Logs {
			lj.logf(now, "INFO", "%s", line)
		}
	}

	// A kill that landed while the script ran is final.
	if lj.job.Status == domain.JobKilled {
		return
	}

	action := &lj.job.Actions[0]
	action.EndTime = &now
	lj.job.EndTime = &now
	if err != nil {
		action.Status = "ERROR"
		action.ErrorCode = "SCRIPT"
		if se != nil {
			action.ErrorCode = strings.ToUpper(string(se.Type))
		}
		action.ErrorMessage = err.Error()
		action.Transition = "kill"
		lj.job.Status = domain.JobFailed
		lj.logf(now, "ERROR", "Job %s failed: %v", id, err)
		return
	}
	action.Status = "OK"
	action.Transition = "end"
	lj.job.Status = domain.JobSucceeded
	lj.logf(now, "INFO", "Job %s succeeded in %s", id, out.Elapsed.Round(time.Millisecond))
}

// Kill stops a PREP or RUNNING job. Killing a finished job is rejected.
func (l *Local) Kill(ctx context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lj, ok := l.jobs[jobID]
	if !ok {
		return domain.NotFound("workflow.Local.Kill", "job not found", nil)
	}
	if !canTransition(lj.job.Status, domain.JobKilled) {
		return remoteErrorf("workflow.Local.Kill", "job %s is already %s", jobID, lj.job.Status)
	}

	now := l.now()
	lj.job.Status = domain.JobKilled
	lj.job.EndTime = &now
	for i := range lj.job.Actions {
		if !lj.job.Actions[i].Done() {
			lj.job.Actions[i].Status = "KILLED"
			lj.job.Actions[i].EndTime = &now
		}
	}
	lj.logf(now, "WARN", "Job %s killed", jobID)
	lj.cancel()

	slog.InfoContext(ctx, "Killed local job", "event", "local_job_killed", "job_id", jobID)
	return nil
}

// Job returns a snapshot of the job.
func (l *Local) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lj, ok := l.jobs[jobID]
	if !ok {
		return nil, domain.NotFound("workflow.Local.Job", "job not found", nil)
	}
	return cloneJob(lj.job), nil
}

// Log returns the job's log lines joined by newlines.
func (l *Local) Log(ctx context.Context, jobID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lj, ok := l.jobs[jobID]
	if !ok {
		return "", domain.NotFound("workflow.Local.Log", "job not found", nil)
	}
	return strings.Join(lj.logs, "\n"), nil
}

// Jobs lists jobs newest first.
func (l *Local) Jobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Job
	for i := len(l.order) - 1; i >= 0; i-- {
		j := l.jobs[l.order[i]].job
		if filter.User != "" && j.User != filter.User {
			continue
		}
		if filter.AppName != "" && j.AppName != filter.AppName {
			continue
		}
		out = append(out, cloneJob(j))
		if filter.Len > 0 && len(out) == filter.Len {
			break
		}
	}
	return out, nil
}

// Close cancels every running job and waits for them to stop.
func (l *Local) Close() error {
	l.cancel()
	l.wg.Wait()
	return nil
}

func (j *localJob) logf(t time.Time, level, format string, args ...any) {
	j.logs = append(j.logs, fmt.Sprintf("%s %s %s - %s",
		t.Format("2006-01-02 15:04:05,000"), level, ScriptAction, fmt.Sprintf(format, args...)))
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	c.ACL = slices.Clone(j.ACL)
	c.Conf = maps.Clone(j.Conf)
	c.Actions = slices.Clone(j.Actions)
	return &c
}
