package lifecycle

import (
	"context"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/logging"
	"github.com/nfrund/scriptdesk/internal/pubsub"
	"github.com/nfrund/scriptdesk/internal/retry"
)

// Reconciler records orphaned jobs on their scripts after the fact.
type Reconciler struct {
	scripts domain.ScriptRepository
	retryer *retry.ExponentialBackoffRetryer
}

// NewReconciler creates a reconciler. A nil retryer uses the default backoff.
func NewReconciler(scripts domain.ScriptRepository, retryer *retry.ExponentialBackoffRetryer) *Reconciler {
	if retryer == nil {
		retryer = retry.NewExponentialBackoffRetryer(retry.WithDelays(500*time.Millisecond, 30*time.Second))
	}
	return &Reconciler{scripts: scripts, retryer: retryer}
}

// Start subscribes to orphaned-job events until ctx is canceled.
func (r *Reconciler) Start(ctx context.Context, sub pubsub.Subscriber) error {
	return pubsub.Subscribe(ctx, sub, pubsub.JobOrphaned, r.Handle)
}

// Handle retries the job id write for one orphaned job. The outcome is
// logged; a script that moved on to another job is left alone.
func (r *Reconciler) Handle(ctx context.Context, userID string, o pubsub.OrphanedJob) error {
	log := logging.FromContext(ctx).With("script_id", o.ScriptID, "job_id", o.JobID, "user", userID)

	err := r.retryer.Retry(ctx, func() error {
		err := r.scripts.SetJobID(ctx, o.ScriptID, o.ExpectedJobID, o.JobID)
		switch domain.KindOf(err) {
		case domain.ErrConflict, domain.ErrNotFound:
			return retry.Permanent(err)
		}
		return err
	})

	switch {
	case err == nil:
		log.InfoContext(ctx, "Orphaned job recorded", "event", "job_reconciled")
	case domain.KindOf(err) == domain.ErrConflict:
		log.WarnContext(ctx, "Orphaned job superseded by a newer submission", "event", "job_reconcile_superseded")
	case domain.KindOf(err) == domain.ErrNotFound:
		log.WarnContext(ctx, "Orphaned job belongs to a deleted script", "event", "job_reconcile_orphan_deleted")
	default:
		log.ErrorContext(ctx, "Failed to reconcile orphaned job", "event", "job_reconcile_failed", "error", err)
	}
	return nil
}
