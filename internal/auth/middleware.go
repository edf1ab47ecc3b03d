package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/respond"
)

// Cookie names used for session tokens.
const (
	AccessCookie  = "accesstoken"
	RefreshCookie = "refreshtoken"
)

// Sessions resolves token subjects to users and rotates refresh tokens.
type Sessions interface {
	LookupUser(ctx context.Context, id string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*User, TokenPair, error)
}

// Cookies writes and clears the session cookies.
type Cookies struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Set writes both session cookies.
func (c Cookies) Set(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, c.cookie(AccessCookie, pair.Access, c.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshCookie, pair.Refresh, c.RefreshTTL))
}

// Clear expires both session cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookie, "", -1))
	http.SetCookie(w, c.cookie(RefreshCookie, "", -1))
}

func (c Cookies) cookie(name, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		ck.MaxAge = -1
	} else if ttl > 0 {
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}

// Authenticator verifies the access token on each request and injects the
// caller into the request context. An expired access token is refreshed in
// place when a valid refresh cookie accompanies it.
type Authenticator struct {
	Issuer   *Issuer
	Sessions Sessions
	Cookies  Cookies

	// OnResult, when set, is called once per request with the outcome
	// ("ok", "refreshed", "missing", "invalid", "expired", "unknown_user").
	OnResult func(result string)
}

// Middleware returns the authentication middleware.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			a.reject(w, "missing", "Unauthorized request: No token provided")
			return
		}

		var user *User
		claims, err := a.Issuer.ParseAccess(token)
		switch {
		case errors.Is(err, ErrTokenExpired):
			user = a.refresh(w, r)
			if user == nil {
				a.reject(w, "expired", "Session expired. Please log in again.")
				return
			}
			a.observe("refreshed")
		case err != nil:
			a.reject(w, "invalid", "Invalid token")
			return
		default:
			user, err = a.Sessions.LookupUser(r.Context(), claims.Subject)
			if apperr.Is(err, apperr.NotFound) {
				a.reject(w, "unknown_user", "User not found")
				return
			}
			if err != nil {
				slog.Error("looking up session user", "error", err)
				respond.Error(w, err)
				return
			}
			a.observe("ok")
		}

		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// refresh attempts a silent token rotation using the refresh cookie. It
// returns nil when no usable refresh token is present.
func (a *Authenticator) refresh(w http.ResponseWriter, r *http.Request) *User {
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	user, pair, err := a.Sessions.Refresh(r.Context(), c.Value)
	if err != nil {
		slog.Debug("silent refresh failed", "error", err)
		return nil
	}
	a.Cookies.Set(w, pair)
	return user
}

func (a *Authenticator) reject(w http.ResponseWriter, result, message string) {
	a.observe(result)
	respond.Error(w, apperr.Unauthenticated(message))
}

func (a *Authenticator) observe(result string) {
	if a.OnResult != nil {
		a.OnResult(result)
	}
}

// extractToken reads the access token from the cookie, falling back to a
// bearer Authorization header.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
