package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestIssuer() *Issuer {
	return NewIssuer("access-secret", "refresh-secret", time.Hour, 10*24*time.Hour)
}

func TestIssueAndParse(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue("u1", "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	claims, err := iss.ParseAccess(pair.Access)
	if err != nil {
		t.Fatalf("ParseAccess() error: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "ada@example.com" || claims.Name != "Ada" {
		t.Errorf("unexpected claims %+v", claims)
	}

	sub, err := iss.ParseRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("ParseRefresh() error: %v", err)
	}
	if sub != "u1" {
		t.Errorf("refresh subject = %q, want u1", sub)
	}
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue("u1", "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := iss.ParseAccess(pair.Refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("refresh token used as access: got %v, want ErrTokenInvalid", err)
	}
	if _, err := iss.ParseRefresh(pair.Access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("access token used as refresh: got %v, want ErrTokenInvalid", err)
	}
}

func TestParseAccess_Expired(t *testing.T) {
	iss := newTestIssuer()
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err := iss.Issue("u1", "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	iss.now = time.Now

	if _, err := iss.ParseAccess(pair.Access); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("got %v, want ErrTokenExpired", err)
	}
	// The refresh token outlives the access token.
	if _, err := iss.ParseRefresh(pair.Refresh); err != nil {
		t.Errorf("refresh token should still be valid: %v", err)
	}
}

func TestParseAccess_Invalid(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue("u1", "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	second, err := iss.Issue("u2", "eve@example.com", "Eve")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	a := strings.Split(pair.Access, ".")
	b := strings.Split(second.Access, ".")
	tampered := a[0] + "." + b[1] + "." + a[2]

	other := NewIssuer("other-secret", "refresh-secret", time.Hour, time.Hour)

	tests := []struct {
		name  string
		token string
		iss   *Issuer
	}{
		{"garbage", "not-a-jwt", iss},
		{"empty", "", iss},
		{"wrong secret", pair.Access, other},
		{"tampered payload", tampered, iss},
		{"truncated", a[0] + "." + a[1], iss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.iss.ParseAccess(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("got %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestIssue_UniquePerCall(t *testing.T) {
	iss := newTestIssuer()
	a, err := iss.Issue("u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := iss.Issue("u1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Refresh == b.Refresh || a.Access == b.Access {
		t.Error("consecutive issues should produce distinct tokens")
	}
}
