package domain

import "slices"

// User is the authenticated caller of a lifecycle operation. It is resolved by
// the identity middleware and never persisted by this service.
type User struct {
	Username  string   `json:"username"`
	Groups    []string `json:"groups,omitempty"`
	Superuser bool     `json:"superuser,omitempty"`
}

// InGroup reports whether the user belongs to group.
func (u *User) InGroup(group string) bool {
	if u == nil || group == "" {
		return false
	}
	return slices.Contains(u.Groups, group)
}

// InAnyGroup reports whether the user belongs to at least one of groups.
func (u *User) InAnyGroup(groups []string) bool {
	for _, g := range groups {
		if u.InGroup(g) {
			return true
		}
	}
	return false
}
