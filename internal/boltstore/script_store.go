package boltstore

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nfrund/scriptdesk/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var _ domain.ScriptRepository = (*ScriptStore)(nil)

// ScriptStore implements domain.ScriptRepository on bbolt. Every operation is
// a single bolt transaction, so compare-and-swap is serialized by the writer lock.
type ScriptStore struct {
	db *DB
}

func (s *ScriptStore) CreateOrUpdate(ctx context.Context, attrs domain.ScriptAttrs) (*domain.Script, error) {
	const op = "boltstore.ScriptStore.CreateOrUpdate"
	var out *domain.Script

	err := s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketScripts)
		if err != nil {
			return err
		}
		idx, err := bucket(tx, bucketJobIndex)
		if err != nil {
			return err
		}

		now := s.db.now()
		var script *domain.Script
		var previousJob string
		if attrs.ID == "" {
			script = attrs.NewScript(now)
			script.ID = uuid.NewString()
		} else {
			script = &domain.Script{}
			found, err := getJSON(b, attrs.ID, script)
			if err != nil {
				return err
			}
			if !found {
				return domain.NotFound(op, "script not found", nil)
			}
			previousJob = script.JobID
			attrs.ApplyTo(script)
			script.UpdatedAt = now
		}

		if err := script.Validate(); err != nil {
			return domain.NewError(domain.ErrInvalidRequest, op, "invalid script", err)
		}
		if err := reindexJob(idx, previousJob, script.JobID, script.ID); err != nil {
			return err
		}
		out = script
		return putJSON(b, script.ID, script)
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func (s *ScriptStore) Get(ctx context.Context, id string) (*domain.Script, error) {
	const op = "boltstore.ScriptStore.Get"
	script := &domain.Script{}
	err := s.db.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketScripts)
		if err != nil {
			return err
		}
		found, err := getJSON(b, id, script)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound(op, "script not found", nil)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return script, nil
}

func (s *ScriptStore) List(ctx context.Context, filter domain.ScriptFilter) ([]*domain.Script, error) {
	var scripts []*domain.Script
	err := s.db.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketScripts)
		if err != nil {
			return err
		}
		scripts = make([]*domain.Script, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			script := &domain.Script{}
			if err := json.Unmarshal(v, script); err != nil {
				return err
			}
			if filter.Matches(script) {
				scripts = append(scripts, script)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrap("boltstore.ScriptStore.List", err)
	}
	domain.SortScripts(scripts)
	return scripts, nil
}

func (s *ScriptStore) Copy(ctx context.Context, src *domain.Script, name, owner string) (*domain.Script, error) {
	const op = "boltstore.ScriptStore.Copy"
	if src == nil {
		return nil, domain.Invalid(op, "source script is required")
	}
	c := domain.CopyOf(src, name, owner, s.db.now())
	c.ID = uuid.NewString()
	err := s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketScripts)
		if err != nil {
			return err
		}
		return putJSON(b, c.ID, c)
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return c, nil
}

func (s *ScriptStore) Delete(ctx context.Context, id string) error {
	const op = "boltstore.ScriptStore.Delete"
	return wrap(op, s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketScripts)
		if err != nil {
			return err
		}
		idx, err := bucket(tx, bucketJobIndex)
		if err != nil {
			return err
		}
		script := &domain.Script{}
		found, err := getJSON(b, id, script)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound(op, "script not found", nil)
		}
		if err := reindexJob(idx, script.JobID, "", id); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	}))
}

func (s *ScriptStore) SetJobID(ctx context.Context, id, expected, jobID string) error {
	const op = "boltstore.ScriptStore.SetJobID"
	if jobID == "" {
		return domain.Invalid(op, "job id is required")
	}
	return wrap(op, s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketScripts)
		if err != nil {
			return err
		}
		idx, err := bucket(tx, bucketJobIndex)
		if err != nil {
			return err
		}
		script := &domain.Script{}
		found, err := getJSON(b, id, script)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound(op, "script not found", nil)
		}
		if script.JobID != expected {
			return domain.NewError(domain.ErrConflict, op, "record was modified concurrently", nil)
		}
		if err := reindexJob(idx, script.JobID, jobID, id); err != nil {
			return err
		}
		script.JobID = jobID
		script.UpdatedAt = s.db.now()
		return putJSON(b, id, script)
	}))
}

func (s *ScriptStore) FindByJobID(ctx context.Context, jobID string) (*domain.Script, error) {
	const op = "boltstore.ScriptStore.FindByJobID"
	if jobID == "" {
		return nil, domain.Invalid(op, "job id is required")
	}
	var id string
	err := s.db.db.View(func(tx *bolt.Tx) error {
		idx, err := bucket(tx, bucketJobIndex)
		if err != nil {
			return err
		}
		v := idx.Get([]byte(jobID))
		if v == nil {
			return domain.NotFound(op, "no script for job", nil)
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return s.Get(ctx, id)
}

// reindexJob moves the job index entry for scriptID from oldJob to newJob.
func reindexJob(idx *bolt.Bucket, oldJob, newJob, scriptID string) error {
	if oldJob == newJob {
		return nil
	}
	if oldJob != "" {
		if err := idx.Delete([]byte(oldJob)); err != nil {
			return err
		}
	}
	if newJob != "" {
		return idx.Put([]byte(newJob), []byte(scriptID))
	}
	return nil
}
