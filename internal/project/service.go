package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/mail"
	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/user"
)

// Repository is the persistence the project service needs. Every operation
// that touches both a project and a user mirror runs inside WithinTx.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjectIDs(ctx context.Context) ([]string, error)
	UpdateProjectFields(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) (*Project, error)
	DeleteTicketsByProject(ctx context.Context, projectID string) (int64, error)

	// AddMember appends m, replacing a rejected record for the same user.
	// It returns ErrAlreadyMember if an active record exists.
	AddMember(ctx context.Context, projectID string, m Member) error
	// RedeemInvitation atomically finds the unseen member whose token hash
	// matches and whose expiry is after now, moves it to status and clears
	// the token. It returns ErrInvitationInvalid when nothing matches.
	RedeemInvitation(ctx context.Context, projectID, tokenHash string, now time.Time, status membership.Status) (*Member, error)
	RemoveMember(ctx context.Context, projectID, userID string) error

	// PutUserProject inserts or replaces the mirror entry for ref.ProjectID.
	PutUserProject(ctx context.Context, userID string, ref membership.Ref) error
	RemoveUserProject(ctx context.Context, projectID string, userIDs ...string) error
	// PruneUserProjects removes the projectID mirror from every user not in
	// keep and returns how many users changed.
	PruneUserProjects(ctx context.Context, projectID string, keep []string) (int64, error)

	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error)
}

// Options configures the project service.
type Options struct {
	InvitationTTL  time.Duration
	FrontendOrigin string
	// OnInvitation, when set, receives "issued", "accepted", "rejected" and
	// "mail_failed" events.
	OnInvitation func(event string)
}

// Service implements project lifecycle, membership and invitations.
type Service struct {
	repo   Repository
	mailer mail.Sender
	opts   Options
	now    func() time.Time
}

// NewService creates a project service.
func NewService(repo Repository, mailer mail.Sender, opts Options) *Service {
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = 7 * 24 * time.Hour
	}
	opts.FrontendOrigin = strings.TrimRight(opts.FrontendOrigin, "/")
	return &Service{repo: repo, mailer: mailer, opts: opts, now: time.Now}
}

func (s *Service) observe(event string) {
	if s.opts.OnInvitation != nil {
		s.opts.OnInvitation(event)
	}
}

// Create makes a new project with the creator as its first admin.
func (s *Service) Create(ctx context.Context, creatorID string, in CreateInput) (*Project, error) {
	if _, err := s.repo.GetUserByID(ctx, creatorID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &Project{
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		CreatedBy:     creatorID,
		StartDate:     now,
		EndDate:       in.EndDate.Ptr(),
		OverallStatus: StatusNotStarted,
		Members: []Member{{
			UserID: creatorID,
			Role:   membership.RoleAdmin,
			Status: membership.StatusCreated,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Title == "" {
		p.Title = fmt.Sprintf("%s%d", defaultTitlePrefix, now.UnixMilli())
	}
	if p.Description == "" {
		p.Description = DefaultDescription
	}
	if start := in.StartDate.Ptr(); start != nil {
		p.StartDate = *start
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return nil, apperr.Invalid("End date cannot be before start date")
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertProject(ctx, p); err != nil {
			return err
		}
		return s.repo.PutUserProject(ctx, creatorID, p.Members[0].Ref(p.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	return p, nil
}

// Get returns a project by id.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

// Update applies a partial update to the project's descriptive fields.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		p.Title = title
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		p.Description = desc
	}
	if end := in.EndDate.Ptr(); end != nil {
		if end.Before(p.StartDate) {
			return nil, apperr.Invalid("End date cannot be before start date")
		}
		p.EndDate = end
	}
	if in.OverallStatus != "" {
		status := OverallStatus(in.OverallStatus)
		if !status.Valid() {
			return nil, apperr.Invalid("Invalid overall status")
		}
		p.OverallStatus = status
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateProjectFields(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the project, pulls it from every member's mirror and
// deletes its tickets.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.DeleteProject(ctx, id)
		if err != nil {
			return err
		}
		if ids := p.MemberIDs(); len(ids) > 0 {
			if err := s.repo.RemoveUserProject(ctx, id, ids...); err != nil {
				return fmt.Errorf("removing member mirrors: %w", err)
			}
		}
		n, err := s.repo.DeleteTicketsByProject(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting project tickets: %w", err)
		}
		slog.DebugContext(ctx, "project deleted", "project_id", id, "tickets_deleted", n)
		return nil
	})
}

// Members lists the project's members with their profiles.
func (s *Service) Members(ctx context.Context, projectID string) ([]MemberDetail, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.GetUsersByIDs(ctx, p.MemberIDs())
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]MemberDetail, 0, len(p.Members))
	for _, m := range p.Members {
		d := MemberDetail{UserID: m.UserID, Role: m.Role, Status: m.Status}
		if u, ok := byID[m.UserID]; ok {
			d.Name, d.Email, d.Avatar = u.Name, u.Email, u.Avatar
		}
		out = append(out, d)
	}
	return out, nil
}

// RemoveMember deletes a membership from both the project and the user.
func (s *Service) RemoveMember(ctx context.Context, projectID, userID string) (*Project, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Invalid("User ID and project ID are required")
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	if _, ok := p.Member(userID); !ok {
		return nil, ErrMemberNotFound
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.RemoveMember(ctx, projectID, userID); err != nil {
			return err
		}
		return s.repo.RemoveUserProject(ctx, projectID, userID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetProject(ctx, projectID)
}

// Reconcile rewrites every member's mirror entry from the project document
// and prunes mirrors held by users who are no longer members. It is
// idempotent.
func (s *Service) Reconcile(ctx context.Context, projectID string) (ReconcileResult, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return ReconcileResult{}, err
	}

	res := ReconcileResult{Projects: 1}
	for _, m := range p.Members {
		err := s.repo.PutUserProject(ctx, m.UserID, m.Ref(p.ID))
		if errors.Is(err, user.ErrNotFound) {
			slog.WarnContext(ctx, "reconcile: member has no user record", "project_id", p.ID, "user_id", m.UserID)
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("mirroring member %s: %w", m.UserID, err)
		}
		res.Mirrored++
	}

	pruned, err := s.repo.PruneUserProjects(ctx, p.ID, p.MemberIDs())
	if err != nil {
		return res, fmt.Errorf("pruning stale mirrors: %w", err)
	}
	res.Pruned = pruned
	return res, nil
}

// ReconcileAll runs Reconcile over every project.
func (s *Service) ReconcileAll(ctx context.Context) (ReconcileResult, error) {
	ids, err := s.repo.ListProjectIDs(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	var total ReconcileResult
	for _, id := range ids {
		res, err := s.Reconcile(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return total, err
		}
		total.add(res)
	}
	return total, nil
}
