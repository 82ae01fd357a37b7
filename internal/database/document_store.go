package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/scriptdesk/internal/domain"
)

var _ domain.DocumentStore = (*DocumentStore)(nil)

// DocumentStore persists script documents in SurrealDB.
type DocumentStore struct {
	client Client[documentRecord]
	now    func() time.Time
}

// NewDocumentStore creates a DocumentStore on top of conn.
func NewDocumentStore(conn *Connection) (*DocumentStore, error) {
	c, err := NewClient[documentRecord](conn, documentTable)
	if err != nil {
		return nil, err
	}
	return newDocumentStore(c), nil
}

func newDocumentStore(c Client[documentRecord]) *DocumentStore {
	return &DocumentStore{client: c, now: func() time.Time { return time.Now().UTC() }}
}

// Create persists a new document.
func (s *DocumentStore) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	const op = "database.DocumentStore.Create"
	if doc == nil {
		return nil, domain.Invalid(op, "document is required")
	}
	if err := doc.Validate(); err != nil {
		return nil, domain.NewError(domain.ErrInvalidRequest, op, "invalid document", err)
	}

	d := *doc
	d.ID = uuid.NewString()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	rec, err := s.client.Create(ctx, d.ID, documentContent(&d))
	if err != nil {
		return nil, toDomain(op, err)
	}
	return rec.toDomain(), nil
}

// Get retrieves a document by id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	rec, err := s.client.Select(ctx, id)
	if err != nil {
		return nil, toDomain("database.DocumentStore.Get", err)
	}
	return rec.toDomain(), nil
}

// Copy persists a clone of src owned by owner and linked to scriptID.
func (s *DocumentStore) Copy(ctx context.Context, src *domain.Document, owner, scriptID, name string) (*domain.Document, error) {
	if src == nil {
		return nil, domain.Invalid("database.DocumentStore.Copy", "source document is required")
	}
	return s.Create(ctx, src.CloneFor(owner, scriptID, name, s.now()))
}

// Delete removes a document.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	return toDomain("database.DocumentStore.Delete", s.client.Delete(ctx, id))
}
