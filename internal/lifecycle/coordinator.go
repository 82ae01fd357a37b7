// Package lifecycle coordinates a script's persisted state with the external
// job it was submitted as.
package lifecycle

import (
	"context"
	"net/url"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/logging"
	"github.com/nfrund/scriptdesk/internal/pubsub"
	"github.com/nfrund/scriptdesk/internal/retry"
)

// Jobs is the job client the coordinator submits through.
type Jobs interface {
	Submit(ctx context.Context, user *domain.User, s *domain.Script, params map[string]string) (string, error)
	Stop(ctx context.Context, jobID string) error
	Job(ctx context.Context, jobID string) (*domain.Job, error)
	Log(ctx context.Context, jobID string) ([]string, error)
	OutputPath(ctx context.Context, job *domain.Job) string
	ResolveOutputLink(p string) string
	List(ctx context.Context, user *domain.User) ([]*domain.Job, error)
}

// Permissions decides whether a user may edit a script.
type Permissions interface {
	CanEdit(ctx context.Context, user *domain.User, s *domain.Script) error
}

// Links builds the URLs returned alongside job snapshots.
type Links struct {
	// WatchBase prefixes watch URLs, e.g. "/spark/watch".
	WatchBase string
	// DashboardBase prefixes kill and rerun URLs of the job dashboard.
	DashboardBase string
}

// WatchURL returns the snapshot URL of jobID.
func (l Links) WatchURL(jobID string) string {
	return l.WatchBase + "/" + url.PathEscape(jobID)
}

// KillURL returns the dashboard URL that kills jobID.
func (l Links) KillURL(jobID string) string {
	return l.DashboardBase + "/manage_oozie_jobs/" + url.PathEscape(jobID) + "/kill"
}

// RerunURL returns the dashboard URL that reruns jobID from appPath.
func (l Links) RerunURL(jobID, appPath string) string {
	return l.DashboardBase + "/rerun_oozie_job/" + url.PathEscape(jobID) + "?app_path=" + url.QueryEscape(appPath)
}

// Coordinator implements the script lifecycle operations. It keeps no job
// state between calls; every status is read from the orchestrator.
type Coordinator struct {
	scripts domain.ScriptRepository
	docs    domain.DocumentStore
	perms   Permissions
	jobs    Jobs
	bus     pubsub.Publisher
	retryer *retry.ExponentialBackoffRetryer
	links   Links
	locks   *keyedMutex
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher publishes lifecycle events on bus.
func WithPublisher(bus pubsub.Publisher) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithRetryer replaces the retryer used for the job id write.
func WithRetryer(r *retry.ExponentialBackoffRetryer) Option {
	return func(c *Coordinator) { c.retryer = r }
}

// WithLinks sets the URL prefixes of returned links.
func WithLinks(l Links) Option {
	return func(c *Coordinator) { c.links = l }
}

// New creates a coordinator.
func New(scripts domain.ScriptRepository, docs domain.DocumentStore, perms Permissions, jobs Jobs, opts ...Option) *Coordinator {
	c := &Coordinator{
		scripts: scripts,
		docs:    docs,
		perms:   perms,
		jobs:    jobs,
		retryer: retry.NewExponentialBackoffRetryer(retry.WithMaxRetries(3), retry.WithDelays(50*time.Millisecond, time.Second)),
		links:   Links{WatchBase: "/spark/watch", DashboardBase: "/oozie"},
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// publish sends an event when a bus is configured. Failures are logged only.
func publish[T any](ctx context.Context, c *Coordinator, event pubsub.Event[T], user *domain.User, payload T) {
	if c.bus == nil {
		return
	}
	if err := pubsub.Publish(ctx, c.bus, event, user.Username, payload); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Failed to publish lifecycle event",
			"event", "lifecycle_publish_failed", "topic", event.Name(), "error", err)
	}
}

func requireUser(op string, user *domain.User) error {
	if user == nil || user.Username == "" {
		return domain.Denied(op, "authentication required")
	}
	return nil
}
