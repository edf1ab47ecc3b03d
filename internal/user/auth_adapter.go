package user

import (
	"context"

	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/membership"
)

// AuthAdapter adapts the user service to the auth.Sessions interface.
type AuthAdapter struct {
	svc *Service
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given user service.
func NewAuthAdapter(svc *Service) *AuthAdapter {
	return &AuthAdapter{svc: svc}
}

// LookupUser loads the user fresh from the store, so role checks always see
// the current membership mirror.
func (a *AuthAdapter) LookupUser(ctx context.Context, id string) (*auth.User, error) {
	u, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toAuthUser(u), nil
}

// Refresh rotates the session tied to refreshToken.
func (a *AuthAdapter) Refresh(ctx context.Context, refreshToken string) (*auth.User, auth.TokenPair, error) {
	sess, err := a.svc.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, auth.TokenPair{}, err
	}
	return toAuthUser(sess.User), sess.Tokens, nil
}

func toAuthUser(u *User) *auth.User {
	return &auth.User{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Projects: append([]membership.Ref(nil), u.Projects...),
	}
}
