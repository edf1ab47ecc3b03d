package ticket

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/user"
)

// Repository is the persistence the ticket service needs.
type Repository interface {
	InsertTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	UpdateTicket(ctx context.Context, t *Ticket) error
	DeleteTicket(ctx context.Context, id string) error
	ListTickets(ctx context.Context, f Filter) ([]*Ticket, error)

	GetProject(ctx context.Context, id string) (*project.Project, error)
	GetUserByID(ctx context.Context, id string) (*user.User, error)
}

// Service implements ticket CRUD and the status workflow.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ticket service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create adds a ticket to a project. The assignee must be a member.
func (s *Service) Create(ctx context.Context, projectID string, in CreateInput) (*Ticket, error) {
	due := in.DueDate.Ptr()
	if due == nil {
		return nil, apperr.Invalid("Due date is required")
	}
	if strings.TrimSpace(in.Assignee) == "" {
		return nil, apperr.Invalid("Assignee is required")
	}
	priority := PriorityLow
	if in.Priority != "" {
		priority = Priority(in.Priority)
		if !priority.Valid() {
			return nil, apperr.Invalid("Invalid priority")
		}
	}
	if err := s.checkAssignee(ctx, projectID, in.Assignee); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &Ticket{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		Status:      StatusTodo,
		Assignee:    in.Assignee,
		ProjectID:   projectID,
		DueDate:     *due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Title == "" {
		t.Title = DefaultTitle
	}
	if t.Description == "" {
		t.Description = DefaultDescription
	}

	if err := s.repo.InsertTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) checkAssignee(ctx context.Context, projectID, assignee string) error {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	_, err = s.repo.GetUserByID(ctx, assignee)
	if errors.Is(err, user.ErrNotFound) {
		return apperr.Missing("The assigned user not found")
	}
	if err != nil {
		return err
	}
	if m, ok := p.Member(assignee); !ok || !m.Status.Active() {
		return apperr.Invalid("The assigned user is not a member of the project")
	}
	return nil
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.repo.GetTicket(ctx, id)
}

// Detail returns a ticket with its assignee and project. Either may be nil
// if it has since been deleted.
func (s *Service) Detail(ctx context.Context, id string) (*Detail, error) {
	t, err := s.repo.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Ticket: t}

	if u, err := s.repo.GetUserByID(ctx, t.Assignee); err == nil {
		d.Assignee = u
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}
	if p, err := s.repo.GetProject(ctx, t.ProjectID); err == nil {
		d.Project = p
	} else if !errors.Is(err, project.ErrNotFound) {
		return nil, err
	}
	return d, nil
}

// ProjectOfTicket returns the id of the project a ticket belongs to.
func (s *Service) ProjectOfTicket(ctx context.Context, ticketID string) (string, error) {
	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return "", err
	}
	return t.ProjectID, nil
}

// Update applies a partial update. A new assignee must be a project member.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Ticket, error) {
	t, err := s.repo.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		t.Title = title
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		t.Description = desc
	}
	if in.Priority != "" {
		p := Priority(in.Priority)
		if !p.Valid() {
			return nil, apperr.Invalid("Invalid priority")
		}
		t.Priority = p
	}
	if due := in.DueDate.Ptr(); due != nil {
		t.DueDate = *due
	}
	if in.Assignee != "" && in.Assignee != t.Assignee {
		if err := s.checkAssignee(ctx, t.ProjectID, in.Assignee); err != nil {
			return nil, err
		}
		t.Assignee = in.Assignee
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a ticket.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteTicket(ctx, id)
}

// ChangeStatus moves a ticket on the board. Only the assignee may do this.
func (s *Service) ChangeStatus(ctx context.Context, id, callerID, status string) (*Ticket, error) {
	t, err := s.repo.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Assignee != callerID {
		return nil, apperr.Denied("You are not assigned to this ticket")
	}
	next := Status(status)
	if !next.Valid() {
		return nil, apperr.Invalid("Invalid status")
	}

	t.Status = next
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTicket(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListByProject returns every ticket in a project.
func (s *Service) ListByProject(ctx context.Context, projectID string) ([]*Ticket, error) {
	return s.repo.ListTickets(ctx, Filter{ProjectID: projectID})
}

// ListMine returns the caller's tickets within a project.
func (s *Service) ListMine(ctx context.Context, projectID, userID string) ([]*Ticket, error) {
	return s.repo.ListTickets(ctx, Filter{ProjectID: projectID, Assignee: userID})
}

// ListAssigned returns every ticket assigned to the user across projects.
func (s *Service) ListAssigned(ctx context.Context, userID string) ([]*Ticket, error) {
	return s.repo.ListTickets(ctx, Filter{Assignee: userID})
}

// Counts tallies the user's assigned tickets by status.
func (s *Service) Counts(ctx context.Context, userID string) (Counts, error) {
	tickets, err := s.ListAssigned(ctx, userID)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{Total: len(tickets)}
	for _, t := range tickets {
		switch t.Status {
		case StatusTodo:
			c.Todo++
		case StatusInProgress:
			c.InProgress++
		case StatusDone:
			c.Done++
		}
	}
	return c, nil
}
