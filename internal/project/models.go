package project

import (
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/jsontime"
	"github.com/alecgard/taskara/internal/membership"
)

// OverallStatus is the coarse progress state of a project.
type OverallStatus string

const (
	StatusNotStarted OverallStatus = "Not Started"
	StatusActive     OverallStatus = "Active"
	StatusOnHold     OverallStatus = "On Hold"
	StatusCompleted  OverallStatus = "Completed"
	StatusDelayed    OverallStatus = "Delayed"
	StatusRejected   OverallStatus = "Rejected"
)

// Valid reports whether s is a known overall status.
func (s OverallStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusActive, StatusOnHold, StatusCompleted, StatusDelayed, StatusRejected:
		return true
	}
	return false
}

// Default field values for new projects.
const (
	DefaultDescription = "Project Description"
	defaultTitlePrefix = "Project#"
)

var (
	ErrNotFound          = apperr.Missing("Project not found")
	ErrMemberNotFound    = apperr.Missing("Member not found in the project")
	ErrAlreadyMember     = apperr.Duplicate("User is already a member of the project or has a pending/accepted invitation")
	ErrInvitationInvalid = apperr.Invalid("Invitation is invalid, expired, or already accepted/rejected.")
)

// Member is the project-side record of a membership. The invitation fields
// are set only while an invitation is outstanding and never leave the server.
type Member struct {
	UserID                string            `json:"user"`
	Role                  membership.Role   `json:"role"`
	Status                membership.Status `json:"status"`
	InvitationTokenHash   string            `json:"-"`
	InvitationTokenExpiry *time.Time        `json:"-"`
}

// Ref returns the user-side mirror entry for this membership.
func (m Member) Ref(projectID string) membership.Ref {
	return membership.Ref{ProjectID: projectID, Role: m.Role, Status: m.Status}
}

// Project is a unit of work owned by its admins.
type Project struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	CreatedBy     string        `json:"createdBy"`
	StartDate     time.Time     `json:"startDate"`
	EndDate       *time.Time    `json:"endDate,omitempty"`
	OverallStatus OverallStatus `json:"overallStatus"`
	Members       []Member      `json:"members"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of p.
func (p *Project) Clone() *Project {
	c := *p
	if p.EndDate != nil {
		end := *p.EndDate
		c.EndDate = &end
	}
	c.Members = make([]Member, len(p.Members))
	for i, m := range p.Members {
		if m.InvitationTokenExpiry != nil {
			exp := *m.InvitationTokenExpiry
			m.InvitationTokenExpiry = &exp
		}
		c.Members[i] = m
	}
	return &c
}

// Member returns the membership record for userID.
func (p *Project) Member(userID string) (Member, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// MemberIDs returns the user ids of every member record.
func (p *Project) MemberIDs() []string {
	ids := make([]string, len(p.Members))
	for i, m := range p.Members {
		ids[i] = m.UserID
	}
	return ids
}

// CreateInput holds the optional fields accepted when creating a project.
type CreateInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	StartDate   *jsontime.Time `json:"startDate"`
	EndDate     *jsontime.Time `json:"endDate"`
}

// UpdateInput holds a partial update. Empty fields are left unchanged.
type UpdateInput struct {
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	EndDate       *jsontime.Time `json:"endDate"`
	OverallStatus string         `json:"overallStatus"`
}

// MemberDetail is a member record joined with the user's public profile.
type MemberDetail struct {
	UserID string            `json:"user"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Avatar string            `json:"profilePic"`
	Role   membership.Role   `json:"role"`
	Status membership.Status `json:"status"`
}

// Acceptance is returned after an invitation is accepted.
type Acceptance struct {
	ProjectTitle string `json:"projectTitle"`
}

// ReconcileResult summarises a mirror repair.
type ReconcileResult struct {
	Projects int   `json:"projects"`
	Mirrored int   `json:"mirrored"`
	Pruned   int64 `json:"pruned"`
	Skipped  int   `json:"skipped"`
}

func (r *ReconcileResult) add(o ReconcileResult) {
	r.Projects += o.Projects
	r.Mirrored += o.Mirrored
	r.Pruned += o.Pruned
	r.Skipped += o.Skipped
}
