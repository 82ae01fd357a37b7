package boltstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/nfrund/scriptdesk/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var _ domain.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements domain.DocumentStore on bbolt.
type DocumentStore struct {
	db *DB
}

func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	const op = "boltstore.DocumentStore.Create"
	if doc == nil {
		return nil, domain.Invalid(op, "document is required")
	}
	if err := doc.Validate(); err != nil {
		return nil, domain.NewError(domain.ErrInvalidRequest, op, "invalid document", err)
	}

	d := *doc
	d.ID = uuid.NewString()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.db.now()
	}
	err := s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDocuments)
		if err != nil {
			return err
		}
		return putJSON(b, d.ID, &d)
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return &d, nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	const op = "boltstore.DocumentStore.Get"
	doc := &domain.Document{}
	err := s.db.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDocuments)
		if err != nil {
			return err
		}
		found, err := getJSON(b, id, doc)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound(op, "document not found", nil)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return doc, nil
}

func (s *DocumentStore) Copy(ctx context.Context, src *domain.Document, owner, scriptID, name string) (*domain.Document, error) {
	if src == nil {
		return nil, domain.Invalid("boltstore.DocumentStore.Copy", "source document is required")
	}
	return s.Create(ctx, src.CloneFor(owner, scriptID, name, s.db.now()))
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	const op = "boltstore.DocumentStore.Delete"
	return wrap(op, s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDocuments)
		if err != nil {
			return err
		}
		if b.Get([]byte(id)) == nil {
			return domain.NotFound(op, "document not found", nil)
		}
		return b.Delete([]byte(id))
	}))
}
