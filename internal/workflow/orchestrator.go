// Package workflow talks to the systems that execute submitted scripts.
package workflow

import (
	"context"
	"fmt"

	"github.com/nfrund/scriptdesk/internal/domain"
)

// AppName is the application name every job submitted by this service carries.
const AppName = "scriptdesk"

// Well-known configuration keys.
const (
	ConfUser         = "user.name"
	ConfAppPath      = "oozie.wf.application.path"
	ConfWorkflowRoot = "workflowRoot"
	ConfScriptID     = "scriptdesk.script.id"
)

// Orchestrator submits and controls workflow jobs.
type Orchestrator interface {
	// Submit starts a job for sub and returns its id.
	Submit(ctx context.Context, sub *domain.Submission) (string, error)
	// Kill stops a job that is still running.
	Kill(ctx context.Context, jobID string) error
	// Job returns the current state of a job.
	Job(ctx context.Context, jobID string) (*domain.Job, error)
	// Log returns the job's log text.
	Log(ctx context.Context, jobID string) (string, error)
	// Jobs lists the jobs matching filter, newest first.
	Jobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
}

// JobFilter narrows a job listing.
type JobFilter struct {
	User    string
	AppName string
	// Len caps the number of jobs returned. Zero means the orchestrator default.
	Len int
}

// RemoteError is a failure reported by the orchestrator itself.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orchestrator error %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("orchestrator error (HTTP %d): %s", e.StatusCode, e.Message)
}

// submissionConf builds the job configuration shared by every orchestrator.
func submissionConf(sub *domain.Submission) map[string]string {
	conf := make(map[string]string, len(sub.Properties)+len(sub.Variables)+3)
	for k, v := range sub.Properties {
		conf[k] = v
	}
	for k, v := range sub.Variables {
		conf[k] = v
	}
	conf[ConfUser] = sub.User
	conf[ConfAppPath] = sub.AppPath
	conf[ConfScriptID] = sub.ScriptID
	if _, ok := conf[ConfWorkflowRoot]; !ok {
		conf[ConfWorkflowRoot] = sub.AppPath
	}
	return conf
}
