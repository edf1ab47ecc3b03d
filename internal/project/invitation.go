package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/mail"
	"github.com/alecgard/taskara/internal/membership"
	"github.com/alecgard/taskara/internal/user"
)

// Invitation is the result of inviting a user. Token is the raw value that
// appears in the emailed link; it is not stored anywhere.
type Invitation struct {
	Project *Project
	Invitee *user.User
	Token   string
	Link    string
}

var invitationEmail = template.Must(template.New("invitation").Parse(`<p>Dear {{.Name}},</p>
<p>You have been invited to join the project: <strong>{{.Title}}</strong> as a <strong>{{.Role}}</strong>.</p>
<p>To accept the invitation, please click on the link below:</p>
<p><a href="{{.Link}}">Accept Invitation</a></p>
<p>This link is valid for {{.Days}} days.</p>
<p>If you did not expect this invitation, you can ignore this email.</p>
<p>Thanks,</p>
<p>The Project Team</p>
`))

// InvitationLink builds the frontend URL that redeems token.
func (s *Service) InvitationLink(projectID, token string) string {
	return fmt.Sprintf("%s/project/accept-invitation/%s/%s", s.opts.FrontendOrigin, projectID, token)
}

// IssueInvitation adds the user with the given email to the project as an
// unseen member and emails them a single-use link. The caller must already
// be authorized to manage the project. A mail failure is logged but does not
// undo the membership.
func (s *Service) IssueInvitation(ctx context.Context, projectID, email, roleName string) (*Invitation, error) {
	email = user.NormalizeEmail(email)
	if email == "" || projectID == "" {
		return nil, apperr.Invalid("User email and project ID are required")
	}
	role, ok := membership.ParseRole(roleName)
	if !ok {
		return nil, apperr.Invalid("Invalid role")
	}

	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	invitee, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if m, ok := p.Member(invitee.ID); ok && m.Status.Active() {
		return nil, ErrAlreadyMember
	}

	raw, hash, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}
	expiry := s.now().UTC().Add(s.opts.InvitationTTL)
	member := Member{
		UserID:                invitee.ID,
		Role:                  role,
		Status:                membership.StatusUnseen,
		InvitationTokenHash:   hash,
		InvitationTokenExpiry: &expiry,
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.AddMember(ctx, projectID, member); err != nil {
			return err
		}
		return s.repo.PutUserProject(ctx, invitee.ID, member.Ref(projectID))
	})
	if err != nil {
		return nil, err
	}
	s.observe("issued")

	updated, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	inv := &Invitation{
		Project: updated,
		Invitee: invitee,
		Token:   raw,
		Link:    s.InvitationLink(projectID, raw),
	}
	if err := s.sendInvitation(ctx, inv, role); err != nil {
		slog.WarnContext(ctx, "invitation email not delivered",
			"project_id", projectID,
			"user_id", invitee.ID,
			"error", err,
		)
		s.observe("mail_failed")
	}
	return inv, nil
}

func (s *Service) sendInvitation(ctx context.Context, inv *Invitation, role membership.Role) error {
	if s.mailer == nil {
		return errors.New("no mail sender configured")
	}
	var body bytes.Buffer
	err := invitationEmail.Execute(&body, map[string]any{
		"Name":  inv.Invitee.Name,
		"Title": inv.Project.Title,
		"Role":  string(role),
		"Link":  template.URL(inv.Link),
		"Days":  int(s.opts.InvitationTTL.Hours() / 24),
	})
	if err != nil {
		return fmt.Errorf("rendering invitation email: %w", err)
	}
	return s.mailer.Send(ctx, mail.Message{
		To:      inv.Invitee.Email,
		Subject: "Project Invitation: You've been invited to " + inv.Project.Title,
		HTML:    body.String(),
	})
}

// AcceptInvitation redeems an invitation token. Redemption is single-use:
// a second call with the same token fails.
func (s *Service) AcceptInvitation(ctx context.Context, projectID, token string) (*Acceptance, error) {
	p, err := s.redeem(ctx, projectID, token, membership.StatusAccepted)
	if err != nil {
		return nil, err
	}
	s.observe("accepted")
	return &Acceptance{ProjectTitle: p.Title}, nil
}

// RejectInvitation declines an invitation token. The rejected record stays
// on the project until the user is invited again.
func (s *Service) RejectInvitation(ctx context.Context, projectID, token string) error {
	if _, err := s.redeem(ctx, projectID, token, membership.StatusRejected); err != nil {
		return err
	}
	s.observe("rejected")
	return nil
}

func (s *Service) redeem(ctx context.Context, projectID, token string, to membership.Status) (*Project, error) {
	token = strings.TrimSpace(token)
	if projectID == "" || token == "" {
		return nil, apperr.Invalid("Project ID and invitation token are required")
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	hash := auth.HashToken(token)
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.repo.RedeemInvitation(ctx, projectID, hash, s.now().UTC(), to)
		if err != nil {
			return err
		}
		err = s.repo.PutUserProject(ctx, m.UserID, membership.Ref{ProjectID: projectID, Role: m.Role, Status: to})
		if errors.Is(err, user.ErrNotFound) {
			return apperr.Missing("Associated user for this invitation not found.")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
