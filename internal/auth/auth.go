package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/alecgard/taskara/internal/membership"
)

// User represents an authenticated caller together with the user-side mirror
// of their project memberships.
type User struct {
	ID       string
	Email    string
	Name     string
	Projects []membership.Ref
}

// RoleIn returns the caller's role in the given project, if they hold one.
func (u *User) RoleIn(projectID string) (membership.Role, bool) {
	ref, ok := membership.Find(u.Projects, projectID)
	if !ok {
		return "", false
	}
	return ref.Role, true
}

// opaqueTokenBytes is the entropy of invitation tokens (64 hex chars).
const opaqueTokenBytes = 32

// GenerateOpaqueToken returns a hex-encoded random token and its hash. Only
// the hash may be persisted.
func GenerateOpaqueToken() (plaintext, hash string, err error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	plaintext = hex.EncodeToString(b)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the hex-encoded SHA-256 hash of the given plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
