package permission

import (
	"context"
	"testing"

	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/stretchr/testify/assert"
)

type docStore struct {
	domain.DocumentStore
	docs map[string]*domain.Document
}

func (s docStore) Get(_ context.Context, id string) (*domain.Document, error) {
	if d, ok := s.docs[id]; ok {
		return d, nil
	}
	return nil, domain.NotFound("test", "document not found", nil)
}

func TestGate_CanEdit(t *testing.T) {
	gate := NewGate(docStore{docs: map[string]*domain.Document{
		"d1": {ID: "d1", Owner: "alice", SharedUsers: []string{"carol"}, SharedGroups: []string{"eng"}},
	}})

	owned := &domain.Script{ID: "s1", DocumentID: "d1"}
	orphan := &domain.Script{ID: "s2", DocumentID: "missing"}
	bare := &domain.Script{ID: "s3"}
	unlinked := &domain.Script{ID: "s4", Owner: "alice"}

	tests := []struct {
		name   string
		user   *domain.User
		script *domain.Script
		allow  bool
	}{
		{"owner", &domain.User{Username: "alice"}, owned, true},
		{"shared user", &domain.User{Username: "carol"}, owned, true},
		{"shared group", &domain.User{Username: "dave", Groups: []string{"eng"}}, owned, true},
		{"stranger", &domain.User{Username: "bob", Groups: []string{"ops"}}, owned, false},
		{"superuser", &domain.User{Username: "root", Superuser: true}, owned, true},
		{"missing document", &domain.User{Username: "alice"}, orphan, false},
		{"missing document superuser", &domain.User{Username: "root", Superuser: true}, orphan, true},
		{"no document", &domain.User{Username: "alice"}, bare, false},
		{"no document owner", &domain.User{Username: "alice"}, unlinked, true},
		{"no document stranger", &domain.User{Username: "bob"}, unlinked, false},
		{"anonymous", nil, owned, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.CanEdit(context.Background(), tt.user, tt.script)
			if tt.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrPermissionDenied)
			}
		})
	}
}

func TestJobPermissions(t *testing.T) {
	job := &domain.Job{ID: "j1", User: "alice", Group: "eng", ACL: []string{"ops", "erin"}}

	tests := []struct {
		name   string
		user   *domain.User
		access bool
		modify bool
	}{
		{"owner", &domain.User{Username: "alice"}, true, true},
		{"superuser", &domain.User{Username: "root", Superuser: true}, true, true},
		{"job group", &domain.User{Username: "bob", Groups: []string{"eng"}}, true, false},
		{"acl group", &domain.User{Username: "carl", Groups: []string{"ops"}}, true, false},
		{"acl user", &domain.User{Username: "erin"}, true, false},
		{"stranger", &domain.User{Username: "dan", Groups: []string{"qa"}}, false, false},
		{"anonymous", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.access, CanAccessJob(tt.user, job) == nil)
			assert.Equal(t, tt.modify, CanModifyJob(tt.user, job) == nil)
		})
	}
}
