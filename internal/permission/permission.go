// Package permission decides who may edit scripts and control jobs.
package permission

import (
	"context"
	"slices"

	"github.com/nfrund/scriptdesk/internal/domain"
)

// Gate checks script and job permissions.
type Gate struct {
	docs domain.DocumentStore
}

// NewGate creates a permission gate backed by docs.
func NewGate(docs domain.DocumentStore) *Gate {
	return &Gate{docs: docs}
}

// CanEdit returns nil when user may modify s. A script with no linked document
// is editable by its owner and superusers; one whose document cannot be read
// by superusers only.
func (g *Gate) CanEdit(ctx context.Context, user *domain.User, s *domain.Script) error {
	const op = "permission.CanEdit"
	if user == nil {
		return domain.Denied(op, "authentication required")
	}
	if s.DocumentID == "" {
		if user.Superuser || (s.Owner != "" && s.Owner == user.Username) {
			return nil
		}
		return domain.Denied(op, "you do not have permission to modify this script")
	}

	doc, err := g.docs.Get(ctx, s.DocumentID)
	if err != nil {
		if user.Superuser {
			return nil
		}
		return domain.NewError(domain.ErrPermissionDenied, op, "you do not have permission to modify this script", err)
	}
	if !doc.CanEdit(user) {
		return domain.Denied(op, "you do not have permission to modify this script")
	}
	return nil
}

// CanAccessJob returns nil when user may view job.
func CanAccessJob(user *domain.User, job *domain.Job) error {
	if user == nil {
		return domain.Denied("permission.CanAccessJob", "authentication required")
	}
	if user.Superuser || job.User == user.Username || user.InAnyGroup(job.ACL) || slices.Contains(job.ACL, user.Username) || user.InGroup(job.Group) {
		return nil
	}
	return domain.Denied("permission.CanAccessJob", "you do not have access to job "+job.ID)
}

// CanModifyJob returns nil when user may kill or rerun job.
func CanModifyJob(user *domain.User, job *domain.Job) error {
	if user != nil && (user.Superuser || job.User == user.Username) {
		return nil
	}
	return domain.Denied("permission.CanModifyJob", "you do not have permission to modify job "+job.ID)
}
