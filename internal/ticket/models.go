package ticket

import (
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/jsontime"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/user"
)

// Priority ranks a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is a ticket's position on the board.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

const (
	DefaultTitle       = "Issue"
	DefaultDescription = "Bug here"
)

var ErrNotFound = apperr.Missing("Ticket not found")

// Ticket is a unit of work inside a project, assigned to one member.
type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Assignee    string    `json:"assignee"`
	ProjectID   string    `json:"projectID"`
	DueDate     time.Time `json:"dueDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Filter narrows ListTickets. Empty fields match everything.
type Filter struct {
	ProjectID string
	Assignee  string
}

// Matches reports whether t satisfies the filter.
func (f Filter) Matches(t *Ticket) bool {
	return (f.ProjectID == "" || t.ProjectID == f.ProjectID) &&
		(f.Assignee == "" || t.Assignee == f.Assignee)
}

// CreateInput holds the fields accepted when creating a ticket.
type CreateInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    string         `json:"priority"`
	Assignee    string         `json:"assignee"`
	DueDate     *jsontime.Time `json:"dueDate"`
}

// UpdateInput holds a partial update. Empty fields are left unchanged.
type UpdateInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    string         `json:"priority"`
	Assignee    string         `json:"assignee"`
	DueDate     *jsontime.Time `json:"dueDate"`
}

// Detail is a ticket joined with its assignee and project.
type Detail struct {
	Ticket   *Ticket          `json:"ticket"`
	Assignee *user.User       `json:"assignee"`
	Project  *project.Project `json:"project"`
}

// Counts tallies a user's assigned tickets by status.
type Counts struct {
	Total      int `json:"totalTickets"`
	Todo       int `json:"todoTickets"`
	InProgress int `json:"in_progressTickets"`
	Done       int `json:"resolvedTickets"`
}
