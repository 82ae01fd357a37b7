package domain

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

// Script is a named unit of work authored by a user. The body is executed by
// the external orchestrator; the script only keeps a reference to the most
// recent job it was submitted as.
type Script struct {
	ID         string            `json:"id"`
	Owner      string            `json:"owner" validate:"required"`
	Name       string            `json:"name" validate:"required,max=255"`
	Body       string            `json:"script" validate:"required"`
	Language   string            `json:"language" validate:"required,max=64"`
	Parameters []string          `json:"parameters"`
	Resources  []string          `json:"resources"`
	Properties map[string]string `json:"hadoopProperties"`
	IsDesign   bool              `json:"isDesign"`
	// JobID is set by the first successful run and only ever overwritten.
	JobID      string    `json:"jobId,omitempty"`
	DocumentID string    `json:"documentId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Validate runs validation checks on the Script struct using the defined tags.
func (s *Script) Validate() error {
	return validatorInstance.Struct(s)
}

// Submitted reports whether the script has been run at least once.
func (s *Script) Submitted() bool {
	return s.JobID != ""
}

// Clone returns a deep copy of the script.
func (s *Script) Clone() *Script {
	c := *s
	c.Parameters = slices.Clone(s.Parameters)
	c.Resources = slices.Clone(s.Resources)
	c.Properties = maps.Clone(s.Properties)
	return &c
}

// ScriptAttrs is a partial update. A nil pointer, slice or map means the field
// is absent and leaves the stored value untouched.
type ScriptAttrs struct {
	ID         string
	Owner      string
	Name       *string
	Body       *string
	Language   *string
	Parameters []string
	Resources  []string
	Properties map[string]string
	IsDesign   *bool
	JobID      *string
	DocumentID *string
}

// coreAttrs is the validated view of the fields every save and run must carry.
type coreAttrs struct {
	Name     *string `validate:"required,min=1,max=255"`
	Body     *string `validate:"required,min=1"`
	Language *string `validate:"required,min=1,max=64"`
}

// RequireCore checks that name, body and language are present and non-empty.
func (a ScriptAttrs) RequireCore() error {
	core := coreAttrs{Name: trimmed(a.Name), Body: a.Body, Language: trimmed(a.Language)}
	if err := validatorInstance.Struct(core); err != nil {
		var missing []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				missing = append(missing, strings.ToLower(fe.Field()))
			}
		}
		return NewError(ErrInvalidRequest, "domain.ScriptAttrs", "missing or invalid fields: "+strings.Join(missing, ", "), err)
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// ApplyTo merges the present fields of a into s. The identifier is never
// changed and a job id is never cleared.
func (a ScriptAttrs) ApplyTo(s *Script) {
	if a.Name != nil {
		s.Name = *a.Name
	}
	if a.Body != nil {
		s.Body = *a.Body
	}
	if a.Language != nil {
		s.Language = *a.Language
	}
	if a.Parameters != nil {
		s.Parameters = slices.Clone(a.Parameters)
	}
	if a.Resources != nil {
		s.Resources = slices.Clone(a.Resources)
	}
	if a.Properties != nil {
		s.Properties = maps.Clone(a.Properties)
	}
	if a.IsDesign != nil {
		s.IsDesign = *a.IsDesign
	}
	if a.JobID != nil && *a.JobID != "" {
		s.JobID = *a.JobID
	}
	if a.DocumentID != nil {
		s.DocumentID = *a.DocumentID
	}
}

// NewScript builds an unsaved script owned by a.Owner from the present fields.
func (a ScriptAttrs) NewScript(now time.Time) *Script {
	s := &Script{
		Owner:      a.Owner,
		Parameters: []string{},
		Resources:  []string{},
		Properties: map[string]string{},
		IsDesign:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	a.ApplyTo(s)
	return s
}

// CopyOf returns an unsaved draft duplicating the content fields of src under
// a new name and owner. Identity, job and document linkage are not carried over.
func CopyOf(src *Script, name, owner string, now time.Time) *Script {
	c := src.Clone()
	c.ID = ""
	c.Name = name
	c.Owner = owner
	c.IsDesign = true
	c.JobID = ""
	c.DocumentID = ""
	c.CreatedAt = now
	c.UpdatedAt = now
	return c
}

// ScriptFilter narrows a repository listing.
type ScriptFilter struct {
	// Owner restricts the listing to one user. Empty means every user.
	Owner string
	// DesignOnly keeps drafts only.
	DesignOnly bool
}

// Matches reports whether s passes the filter.
func (f ScriptFilter) Matches(s *Script) bool {
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	if f.DesignOnly && !s.IsDesign {
		return false
	}
	return true
}

// SortScripts orders scripts newest update first, breaking ties by id.
func SortScripts(scripts []*Script) {
	slices.SortStableFunc(scripts, func(a, b *Script) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ScriptRepository defines the contract for script persistence.
type ScriptRepository interface {
	// CreateOrUpdate creates a script when attrs.ID is empty, otherwise merges
	// the present fields over the stored script. Unknown ids fail with ErrNotFound.
	CreateOrUpdate(ctx context.Context, attrs ScriptAttrs) (*Script, error)

	// Get retrieves a script by id.
	Get(ctx context.Context, id string) (*Script, error)

	// List returns the scripts matching filter, newest update first.
	List(ctx context.Context, filter ScriptFilter) ([]*Script, error)

	// Copy persists a new draft duplicating src's content under name and owner.
	Copy(ctx context.Context, src *Script, name, owner string) (*Script, error)

	// Delete removes the script row only.
	Delete(ctx context.Context, id string) error

	// SetJobID replaces the job id only if it still equals expected.
	// A mismatch fails with ErrConflict.
	SetJobID(ctx context.Context, id, expected, jobID string) error

	// FindByJobID returns the script whose current job is jobID.
	FindByJobID(ctx context.Context, jobID string) (*Script, error)
}
