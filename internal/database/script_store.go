package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/scriptdesk/internal/domain"
)

// var _ ensures that ScriptStore implements the domain.ScriptRepository interface at compile time.
var _ domain.ScriptRepository = (*ScriptStore)(nil)

// ScriptStore persists scripts in SurrealDB.
type ScriptStore struct {
	client Client[scriptRecord]
	now    func() time.Time
}

// NewScriptStore creates a ScriptStore on top of conn.
func NewScriptStore(conn *Connection) (*ScriptStore, error) {
	c, err := NewClient[scriptRecord](conn, scriptTable)
	if err != nil {
		return nil, err
	}
	return newScriptStore(c), nil
}

func newScriptStore(c Client[scriptRecord]) *ScriptStore {
	return &ScriptStore{client: c, now: func() time.Time { return time.Now().UTC() }}
}

// CreateOrUpdate creates a script when attrs.ID is empty and merges attrs
// over the stored script otherwise.
func (s *ScriptStore) CreateOrUpdate(ctx context.Context, attrs domain.ScriptAttrs) (*domain.Script, error) {
	const op = "database.ScriptStore.CreateOrUpdate"
	now := s.now()

	if attrs.ID == "" {
		script := attrs.NewScript(now)
		script.ID = uuid.NewString()
		if err := script.Validate(); err != nil {
			return nil, domain.NewError(domain.ErrInvalidRequest, op, "invalid script", err)
		}
		rec, err := s.client.Create(ctx, script.ID, scriptContent(script))
		if err != nil {
			return nil, toDomain(op, err)
		}
		return rec.toDomain(), nil
	}

	current, err := s.Get(ctx, attrs.ID)
	if err != nil {
		return nil, err
	}
	attrs.ApplyTo(current)
	current.UpdatedAt = now
	if err := current.Validate(); err != nil {
		return nil, domain.NewError(domain.ErrInvalidRequest, op, "invalid script", err)
	}

	data := scriptContent(current)
	delete(data, "created_at")
	delete(data, "owner")
	// The job id is only written by SetJobID unless the caller supplied one.
	if attrs.JobID == nil || *attrs.JobID == "" {
		delete(data, "job_id")
	}
	rec, err := s.client.Merge(ctx, current.ID, data)
	if err != nil {
		return nil, toDomain(op, err)
	}
	return rec.toDomain(), nil
}

// Get retrieves a script by id.
func (s *ScriptStore) Get(ctx context.Context, id string) (*domain.Script, error) {
	rec, err := s.client.Select(ctx, id)
	if err != nil {
		return nil, toDomain("database.ScriptStore.Get", err)
	}
	return rec.toDomain(), nil
}

// List returns the scripts matching filter, newest update first.
func (s *ScriptStore) List(ctx context.Context, filter domain.ScriptFilter) ([]*domain.Script, error) {
	query := "SELECT * FROM type::table($table)"
	vars := map[string]any{"table": scriptTable}

	var conds []string
	if filter.Owner != "" {
		conds = append(conds, "owner = $owner")
		vars["owner"] = filter.Owner
	}
	if filter.DesignOnly {
		conds = append(conds, "is_design = true")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	recs, err := s.client.Query(ctx, query, vars)
	if err != nil {
		return nil, toDomain("database.ScriptStore.List", err)
	}

	scripts := make([]*domain.Script, 0, len(recs))
	for i := range recs {
		scripts = append(scripts, recs[i].toDomain())
	}
	domain.SortScripts(scripts)
	return scripts, nil
}

// Copy persists a new draft duplicating src under name and owner.
func (s *ScriptStore) Copy(ctx context.Context, src *domain.Script, name, owner string) (*domain.Script, error) {
	const op = "database.ScriptStore.Copy"
	if src == nil {
		return nil, domain.Invalid(op, "source script is required")
	}
	c := domain.CopyOf(src, name, owner, s.now())
	c.ID = uuid.NewString()
	rec, err := s.client.Create(ctx, c.ID, scriptContent(c))
	if err != nil {
		return nil, toDomain(op, err)
	}
	return rec.toDomain(), nil
}

// Delete removes the script row.
func (s *ScriptStore) Delete(ctx context.Context, id string) error {
	return toDomain("database.ScriptStore.Delete", s.client.Delete(ctx, id))
}

// SetJobID replaces the job id only if it still equals expected.
func (s *ScriptStore) SetJobID(ctx context.Context, id, expected, jobID string) error {
	const op = "database.ScriptStore.SetJobID"
	if jobID == "" {
		return domain.Invalid(op, "job id is required")
	}
	query := "UPDATE type::thing($table, $id) SET job_id = $job, updated_at = $now WHERE job_id = $expected RETURN AFTER"
	recs, err := s.client.Query(ctx, query, map[string]any{
		"table":    scriptTable,
		"id":       id,
		"job":      jobID,
		"expected": expected,
		"now":      dateTime(s.now()),
	})
	if err != nil {
		return toDomain(op, err)
	}
	if len(recs) > 0 {
		return nil
	}

	// Nothing matched: either the script is gone or someone else moved the job id.
	if _, err := s.client.Select(ctx, id); err != nil {
		return toDomain(op, err)
	}
	return toDomain(op, NewDBError(ErrStale, "job id changed since it was read"))
}

// FindByJobID returns the script whose current job is jobID.
func (s *ScriptStore) FindByJobID(ctx context.Context, jobID string) (*domain.Script, error) {
	const op = "database.ScriptStore.FindByJobID"
	if jobID == "" {
		return nil, domain.Invalid(op, "job id is required")
	}
	rec, err := s.client.QueryOne(ctx, "SELECT * FROM type::table($table) WHERE job_id = $job", map[string]any{
		"table": scriptTable,
		"job":   jobID,
	})
	if err != nil {
		return nil, toDomain(op, err)
	}
	if rec == nil {
		return nil, toDomain(op, NewDBError(ErrNotFound, "no script for job"))
	}
	return rec.toDomain(), nil
}
