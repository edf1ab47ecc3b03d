package user

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/membership"
)

// Repository is the persistence the user service needs. Implementations
// return ErrNotFound and ErrEmailTaken (possibly wrapped) for the
// corresponding conditions.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	ListEmails(ctx context.Context) ([]string, error)
}

// Service implements registration, login and the single-session refresh
// token lifecycle.
type Service struct {
	repo   Repository
	issuer *auth.Issuer
	now    func() time.Time
}

// NewService creates a user service.
func NewService(repo Repository, issuer *auth.Issuer) *Service {
	return &Service{repo: repo, issuer: issuer, now: time.Now}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a new user. The password is stored only as a bcrypt hash.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apperr.Invalid("Name, email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Invalid("Invalid email address")
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Avatar:       DefaultAvatar,
		Projects:     []membership.Ref{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a new token pair. Only the hash of
// the refresh token is stored, replacing any previous session.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apperr.Invalid("Email and password are required")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Missing("User not found Try registering first")
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u, in.Password) {
		return nil, apperr.Unauthenticated("Invalid credentials")
	}

	return s.startSession(ctx, u)
}

// Refresh verifies a refresh token against the stored hash and rotates both
// tokens. A refresh token can be redeemed once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.Invalid("You are not logged in")
	}
	userID, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthenticated("Invalid refresh token")
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored := []byte(u.RefreshTokenHash)
	presented := []byte(auth.HashToken(refreshToken))
	if len(stored) == 0 || subtle.ConstantTimeCompare(stored, presented) != 1 {
		return nil, apperr.Unauthenticated("Refresh token is expired or used")
	}

	return s.startSession(ctx, u)
}

func (s *Service) startSession(ctx context.Context, u *User) (*Session, error) {
	pair, err := s.issuer.Issue(u.ID, u.Email, u.Name)
	if err != nil {
		return nil, err
	}
	hash := auth.HashToken(pair.Refresh)
	if err := s.repo.SetRefreshTokenHash(ctx, u.ID, hash); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	u.RefreshTokenHash = hash
	return &Session{User: u, Tokens: pair}, nil
}

// Logout revokes the user's refresh token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.repo.SetRefreshTokenHash(ctx, userID, "")
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// Update applies a partial profile update. A new password is re-hashed.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		u.Name = name
	}
	if email := NormalizeEmail(in.Email); email != "" && email != u.Email {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.Invalid("Invalid email address")
		}
		u.Email = email
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	if pic := strings.TrimSpace(in.ProfilePic); pic != "" {
		u.Avatar = pic
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListEmails returns every registered email address.
func (s *Service) ListEmails(ctx context.Context) ([]string, error) {
	return s.repo.ListEmails(ctx)
}

// Projects returns the user's membership mirror.
func (s *Service) Projects(ctx context.Context, id string) ([]membership.Ref, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Projects, nil
}

// PendingInvitations returns the mirror entries still awaiting a response.
func (s *Service) PendingInvitations(ctx context.Context, id string) ([]membership.Ref, error) {
	refs, err := s.Projects(ctx, id)
	if err != nil {
		return nil, err
	}
	pending := []membership.Ref{}
	for _, r := range refs {
		if r.Status == membership.StatusUnseen {
			pending = append(pending, r)
		}
	}
	return pending, nil
}
