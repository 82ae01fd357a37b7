package domain

import (
	"context"
	"slices"
	"time"
)

// Document is the ownership and sharing record paired 1:1 with a script.
type Document struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner" validate:"required"`
	ScriptID     string    `json:"scriptId" validate:"required"`
	Name         string    `json:"name"`
	SharedUsers  []string  `json:"sharedUsers,omitempty"`
	SharedGroups []string  `json:"sharedGroups,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate runs validation checks on the Document struct using the defined tags.
func (d *Document) Validate() error {
	return validatorInstance.Struct(d)
}

// CanEdit reports whether user may modify or delete the document's script.
func (d *Document) CanEdit(user *User) bool {
	if user == nil {
		return false
	}
	if user.Superuser || d.Owner == user.Username {
		return true
	}
	return slices.Contains(d.SharedUsers, user.Username) || user.InAnyGroup(d.SharedGroups)
}

// CloneFor returns an unsaved copy of d owned by owner and linked to scriptID.
// Sharing is carried over.
func (d *Document) CloneFor(owner, scriptID, name string, now time.Time) *Document {
	return &Document{
		Owner:        owner,
		ScriptID:     scriptID,
		Name:         name,
		SharedUsers:  slices.Clone(d.SharedUsers),
		SharedGroups: slices.Clone(d.SharedGroups),
		CreatedAt:    now,
	}
}

// DocumentStore defines the contract for document persistence.
type DocumentStore interface {
	// Create persists a new document and returns it with its id.
	Create(ctx context.Context, doc *Document) (*Document, error)

	// Get retrieves a document by id.
	Get(ctx context.Context, id string) (*Document, error)

	// Copy persists a clone of src owned by owner and linked to scriptID.
	Copy(ctx context.Context, src *Document, owner, scriptID, name string) (*Document, error)

	// Delete removes a document.
	Delete(ctx context.Context, id string) error
}
