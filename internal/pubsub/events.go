package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event[T] binds a topic name to its payload type.
type Event[T any] struct {
	topicName   string
	description string
}

// NewEvent creates a typed event for topic name.
func NewEvent[T any](name, description string) Event[T] {
	return Event[T]{topicName: name, description: description}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Description returns the human-readable purpose of the topic.
func (e Event[T]) Description() string {
	return e.description
}

// Publish sends a typed event on behalf of userID. The compiler ensures
// payload matches T.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], userID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Name(), err)
	}
	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		UserID:  userID,
		Payload: data,
	})
}

// Subscribe decodes every message on event's topic into T before calling handler.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], handler func(ctx context.Context, userID string, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", event.Name(), err)
		}
		return handler(ctx, msg.UserID, payload)
	})
}

// ScriptEvent describes a change to one script.
type ScriptEvent struct {
	ScriptID string `json:"script_id"`
	Name     string `json:"name,omitempty"`
	JobID    string `json:"job_id,omitempty"`
	// SourceID is set on copies.
	SourceID string `json:"source_id,omitempty"`
}

// DeleteEvent reports a bulk delete request.
type DeleteEvent struct {
	Requested []string `json:"requested"`
	Deleted   []string `json:"deleted"`
}

// JobEvent describes an orchestrator-side change to a job.
type JobEvent struct {
	ScriptID string `json:"script_id"`
	JobID    string `json:"job_id"`
	Status   string `json:"status,omitempty"`
}

// OrphanedJob is a submitted job whose id could not be recorded on its script.
type OrphanedJob struct {
	ScriptID      string `json:"script_id"`
	ExpectedJobID string `json:"expected_job_id"`
	JobID         string `json:"job_id"`
	Reason        string `json:"reason,omitempty"`
}

// Lifecycle topics.
var (
	ScriptSaved     = NewEvent[ScriptEvent]("scripts.saved", "A script draft was created or updated")
	ScriptSubmitted = NewEvent[ScriptEvent]("scripts.submitted", "A script was submitted and its job id recorded")
	ScriptCopied    = NewEvent[ScriptEvent]("scripts.copied", "A script was copied together with its document")
	ScriptsDeleted  = NewEvent[DeleteEvent]("scripts.deleted", "A bulk delete finished")
	JobStopped      = NewEvent[JobEvent]("jobs.stopped", "A running job was killed")
	JobOrphaned     = NewEvent[OrphanedJob]("jobs.orphaned", "A job is running but its script does not reference it")
)
