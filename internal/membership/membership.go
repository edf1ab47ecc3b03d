// Package membership holds the role and status vocabulary shared by the
// project-side member list and the user-side project mirror.
package membership

import "slices"

// Role controls which actions a member may perform on a project.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// Status is the invitation lifecycle stage of a membership.
type Status string

const (
	StatusCreated  Status = "created"
	StatusUnseen   Status = "unseen"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

// In reports whether r is one of allowed.
func (r Role) In(allowed ...Role) bool {
	return slices.Contains(allowed, r)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusUnseen, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Active reports whether the membership still counts as belonging to the
// project. Rejected invitations do not block a fresh invite.
func (s Status) Active() bool {
	return s != StatusRejected
}

// ParseRole returns the role named by s. An empty string yields the default
// viewer role.
func ParseRole(s string) (Role, bool) {
	if s == "" {
		return RoleViewer, true
	}
	r := Role(s)
	return r, r.Valid()
}

// Ref is one entry of a user's project mirror.
type Ref struct {
	ProjectID string `json:"projectID"`
	Role      Role   `json:"role"`
	Status    Status `json:"status"`
}

// Find returns the ref for projectID, if any.
func Find(refs []Ref, projectID string) (Ref, bool) {
	for _, r := range refs {
		if r.ProjectID == projectID {
			return r, true
		}
	}
	return Ref{}, false
}
