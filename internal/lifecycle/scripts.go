package lifecycle

import (
	"context"
	"errors"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/nfrund/scriptdesk/internal/i18n"
	"github.com/nfrund/scriptdesk/internal/logging"
	"github.com/nfrund/scriptdesk/internal/pubsub"
	"github.com/nfrund/scriptdesk/internal/retry"
	"github.com/nfrund/scriptdesk/internal/workflow"
)

// RunResult is the outcome of a successful Run.
type RunResult struct {
	ID       string `json:"id"`
	WatchURL string `json:"watchUrl"`
	JobID    string `json:"-"`
}

// DeleteResult is the outcome of deleting one script.
type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// DeleteReport echoes the requested ids and records what happened to each.
type DeleteReport struct {
	IDs     []string       `json:"ids"`
	Results []DeleteResult `json:"results,omitempty"`
}

// DashboardJob is a job annotated with the script that owns it.
type DashboardJob struct {
	*domain.Job
	Progress   int    `json:"progress"`
	IsRunning  bool   `json:"isRunning"`
	ScriptID   string `json:"scriptId,omitempty"`
	ScriptName string `json:"scriptName,omitempty"`
}

// Save creates or updates a draft. It never contacts the orchestrator.
func (c *Coordinator) Save(ctx context.Context, user *domain.User, attrs domain.ScriptAttrs) (*domain.Script, error) {
	s, err := c.persist(ctx, "lifecycle.Save", user, attrs, true)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).InfoContext(ctx, "Script saved", "event", "script_saved", "script_id", s.ID, "user", user.Username)
	publish(ctx, c, pubsub.ScriptSaved, user, pubsub.ScriptEvent{ScriptID: s.ID, Name: s.Name})
	return s, nil
}

// Run persists the script, submits it once and records the new job id.
func (c *Coordinator) Run(ctx context.Context, user *domain.User, attrs domain.ScriptAttrs, params map[string]string) (*RunResult, error) {
	const op = "lifecycle.Run"
	log := logging.FromContext(ctx)

	s, err := c.persist(ctx, op, user, attrs, false)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(s.ID)
	defer unlock()

	current, err := c.scripts.Get(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	expected := current.JobID

	jobID, err := c.jobs.Submit(ctx, user, current, params)
	if err != nil {
		log.WarnContext(ctx, "Script submission failed", "event", "script_submit_failed", "script_id", s.ID, "error", err)
		if domain.KindOf(err) != domain.ErrSubmission {
			err = domain.NewError(domain.ErrSubmission, op, "failed to submit script", err)
		}
		return nil, err
	}

	err = c.retryer.Retry(ctx, func() error {
		err := c.scripts.SetJobID(ctx, s.ID, expected, jobID)
		switch domain.KindOf(err) {
		case domain.ErrConflict, domain.ErrNotFound:
			return retry.Permanent(err)
		}
		return err
	})

	switch {
	case err == nil:
	case domain.KindOf(err) == domain.ErrConflict:
		log.WarnContext(ctx, "Script was submitted concurrently, killing duplicate job",
			"event", "script_submit_conflict", "script_id", s.ID, "job_id", jobID)
		if stopErr := c.jobs.Stop(context.WithoutCancel(ctx), jobID); stopErr != nil {
			log.WarnContext(ctx, "Failed to kill duplicate job", "event", "duplicate_kill_failed", "job_id", jobID, "error", stopErr)
		}
		return nil, domain.NewError(domain.ErrConflict, op, "the script was submitted concurrently, try again", err)
	default:
		log.ErrorContext(ctx, "Job submitted but not recorded on its script",
			"event", "job_orphaned", "script_id", s.ID, "job_id", jobID, "error", err)
		publish(context.WithoutCancel(ctx), c, pubsub.JobOrphaned, user, pubsub.OrphanedJob{
			ScriptID:      s.ID,
			ExpectedJobID: expected,
			JobID:         jobID,
			Reason:        err.Error(),
		})
		return nil, domain.NewError(domain.ErrPersistence, op, "the job was submitted but could not be recorded", err)
	}

	log.InfoContext(ctx, "Script submitted", "event", "script_run", "script_id", s.ID, "job_id", jobID)
	publish(ctx, c, pubsub.ScriptSubmitted, user, pubsub.ScriptEvent{ScriptID: s.ID, Name: s.Name, JobID: jobID})

	return &RunResult{ID: s.ID, WatchURL: c.links.WatchURL(jobID), JobID: jobID}, nil
}

// persist validates attrs and writes them with the given design flag. New
// scripts get a document owned by user.
func (c *Coordinator) persist(ctx context.Context, op string, user *domain.User, attrs domain.ScriptAttrs, design bool) (*domain.Script, error) {
	if err := requireUser(op, user); err != nil {
		return nil, err
	}
	if err := attrs.RequireCore(); err != nil {
		return nil, err
	}

	attrs.IsDesign = &design
	attrs.JobID = nil
	attrs.DocumentID = nil

	if attrs.ID != "" {
		existing, err := c.scripts.Get(ctx, attrs.ID)
		if err != nil {
			return nil, err
		}
		if err := c.perms.CanEdit(ctx, user, existing); err != nil {
			return nil, err
		}
		attrs.Owner = existing.Owner
	} else {
		attrs.Owner = user.Username
	}

	s, err := c.scripts.CreateOrUpdate(ctx, attrs)
	if err != nil {
		return nil, err
	}
	if s.DocumentID != "" {
		return s, nil
	}

	doc, err := c.docs.Create(ctx, &domain.Document{Owner: s.Owner, ScriptID: s.ID, Name: s.Name})
	if err != nil {
		if attrs.ID == "" {
			c.discard(ctx, s.ID)
		}
		return nil, domain.NewError(domain.ErrPersistence, op, "failed to create the script's document", err)
	}
	return c.scripts.CreateOrUpdate(ctx, domain.ScriptAttrs{ID: s.ID, DocumentID: &doc.ID})
}

// discard removes a script row written moments ago whose document could not
// be stored.
func (c *Coordinator) discard(ctx context.Context, id string) {
	if err := c.scripts.Delete(context.WithoutCancel(ctx), id); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "Failed to remove script without document",
			"event", "script_discard_failed", "script_id", id, "error", err)
	}
}

// Copy duplicates a script the user may edit together with its document.
func (c *Coordinator) Copy(ctx context.Context, user *domain.User, id string) (*domain.Script, error) {
	const op = "lifecycle.Copy"
	if err := requireUser(op, user); err != nil {
		return nil, err
	}

	src, err := c.scripts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.perms.CanEdit(ctx, user, src); err != nil {
		return nil, err
	}

	name := i18n.CopyName(i18n.FromContext(ctx), src.Name)
	cp, err := c.scripts.Copy(ctx, src, name, user.Username)
	if err != nil {
		return nil, err
	}

	var doc *domain.Document
	if srcDoc, getErr := c.docs.Get(ctx, src.DocumentID); getErr == nil {
		doc, err = c.docs.Copy(ctx, srcDoc, user.Username, cp.ID, name)
	} else {
		doc, err = c.docs.Create(ctx, &domain.Document{Owner: user.Username, ScriptID: cp.ID, Name: name})
	}
	if err != nil {
		c.discard(ctx, cp.ID)
		return nil, domain.NewError(domain.ErrPersistence, op, "failed to create the copy's document", err)
	}

	cp, err = c.scripts.CreateOrUpdate(ctx, domain.ScriptAttrs{ID: cp.ID, DocumentID: &doc.ID})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).InfoContext(ctx, "Script copied", "event", "script_copied", "script_id", cp.ID, "source_id", src.ID)
	publish(ctx, c, pubsub.ScriptCopied, user, pubsub.ScriptEvent{ScriptID: cp.ID, Name: cp.Name, SourceID: src.ID})
	return cp, nil
}

// Delete removes each script the user may edit along with its document.
// Per-id failures never fail the call; they are logged and recorded in the
// report's results.
func (c *Coordinator) Delete(ctx context.Context, user *domain.User, ids []string) *DeleteReport {
	log := logging.FromContext(ctx)
	report := &DeleteReport{IDs: ids, Results: make([]DeleteResult, 0, len(ids))}

	var deleted []string
	for _, id := range ids {
		res := DeleteResult{ID: id}
		if err := c.deleteOne(ctx, user, id); err != nil {
			log.WarnContext(ctx, "Failed to delete script", "event", "script_delete_failed", "script_id", id, "error", err)
			res.Error = domain.UserMessage(err)
		} else {
			res.Deleted = true
			deleted = append(deleted, id)
		}
		report.Results = append(report.Results, res)
	}

	if user != nil && len(deleted) > 0 {
		publish(ctx, c, pubsub.ScriptsDeleted, user, pubsub.DeleteEvent{Requested: ids, Deleted: deleted})
	}
	return report
}

func (c *Coordinator) deleteOne(ctx context.Context, user *domain.User, id string) error {
	const op = "lifecycle.Delete"
	if err := requireUser(op, user); err != nil {
		return err
	}
	if id == "" {
		return domain.Invalid(op, "empty script id")
	}

	unlock := c.locks.Lock(id)
	defer unlock()

	s, err := c.scripts.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.perms.CanEdit(ctx, user, s); err != nil {
		return err
	}
	if s.DocumentID != "" {
		if err := c.docs.Delete(ctx, s.DocumentID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return c.scripts.Delete(ctx, id)
}

// List returns the user's scripts, newest update first. Superusers see every
// user's scripts.
func (c *Coordinator) List(ctx context.Context, user *domain.User, designOnly bool) ([]*domain.Script, error) {
	if err := requireUser("lifecycle.List", user); err != nil {
		return nil, err
	}
	filter := domain.ScriptFilter{Owner: user.Username, DesignOnly: designOnly}
	if user.Superuser {
		filter.Owner = ""
	}
	return c.scripts.List(ctx, filter)
}

// Dashboard lists the user's jobs with the scripts they were submitted from.
func (c *Coordinator) Dashboard(ctx context.Context, user *domain.User) ([]DashboardJob, error) {
	if err := requireUser("lifecycle.Dashboard", user); err != nil {
		return nil, err
	}

	jobs, err := c.jobs.List(ctx, user)
	if err != nil {
		return nil, err
	}

	out := make([]DashboardJob, 0, len(jobs))
	for _, j := range jobs {
		dj := DashboardJob{Job: j, Progress: j.Progress(), IsRunning: j.IsRunning()}
		if s := c.scriptForJob(ctx, j); s != nil {
			dj.ScriptID = s.ID
			dj.ScriptName = s.Name
		}
		out = append(out, dj)
	}
	return out, nil
}

// scriptForJob resolves the script a job currently belongs to, or nil.
func (c *Coordinator) scriptForJob(ctx context.Context, j *domain.Job) *domain.Script {
	if id := j.Conf[workflow.ConfScriptID]; id != "" {
		if s, err := c.scripts.Get(ctx, id); err == nil {
			return s
		}
	}
	if s, err := c.scripts.FindByJobID(ctx, j.ID); err == nil {
		return s
	}
	return nil
}
