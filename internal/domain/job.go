package domain

import "time"

// JobStatus is the orchestrator-reported state of a workflow job.
type JobStatus string

const (
	JobPrep      JobStatus = "PREP"
	JobRunning   JobStatus = "RUNNING"
	JobSuspended JobStatus = "SUSPENDED"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobKilled    JobStatus = "KILLED"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobKilled:
		return true
	}
	return false
}

// JobAction is one node of a workflow job.
type JobAction struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	ExternalID   string     `json:"externalId,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Transition   string     `json:"transition,omitempty"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
}

// Done reports whether the action finished, successfully or not.
func (a JobAction) Done() bool {
	switch a.Status {
	case "OK", "DONE", "ERROR", "KILLED", "FAILED":
		return true
	}
	return false
}

// Job is the orchestrator's view of one submitted script. It is never
// persisted locally; every read goes back to the orchestrator.
type Job struct {
	ID          string            `json:"id"`
	AppName     string            `json:"appName"`
	AppPath     string            `json:"appPath"`
	User        string            `json:"user"`
	Group       string            `json:"group,omitempty"`
	ACL         []string          `json:"acl,omitempty"`
	Status      JobStatus         `json:"status"`
	Conf        map[string]string `json:"conf,omitempty"`
	Actions     []JobAction       `json:"actions"`
	CreatedTime *time.Time        `json:"createdTime,omitempty"`
	StartTime   *time.Time        `json:"startTime,omitempty"`
	EndTime     *time.Time        `json:"endTime,omitempty"`
}

// IsRunning reports whether the job can still make progress.
func (j *Job) IsRunning() bool {
	switch j.Status {
	case JobPrep, JobRunning, JobSuspended:
		return true
	}
	return false
}

// Progress returns the completion percentage of the job.
func (j *Job) Progress() int {
	if j.Status.Terminal() {
		return 100
	}
	if len(j.Actions) == 0 {
		return 0
	}
	done := 0
	for _, a := range j.Actions {
		if a.Done() {
			done++
		}
	}
	return done * 100 / len(j.Actions)
}

// Submission is everything the orchestrator needs to start a job.
type Submission struct {
	User       string
	AppName    string
	AppPath    string
	ScriptID   string
	Language   string
	Body       string
	Parameters []string
	Resources  []string
	Properties map[string]string
	// Variables are the caller-supplied submission variables.
	Variables map[string]string
}
