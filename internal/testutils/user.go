package testutils

import "github.com/nfrund/scriptdesk/internal/domain"

// NewUser returns a regular user in the given groups.
func NewUser(name string, groups ...string) *domain.User {
	return &domain.User{Username: name, Groups: groups}
}

// NewSuperuser returns a user that passes every permission check.
func NewSuperuser(name string) *domain.User {
	return &domain.User{Username: name, Superuser: true}
}
