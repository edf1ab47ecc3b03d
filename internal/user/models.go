package user

import (
	"time"

	"github.com/alecgard/taskara/internal/apperr"
	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/membership"
)

// DefaultAvatar is assigned to users who have not set a profile picture.
const DefaultAvatar = "https://placehold.co/150x150/cbd5e1/1f2937?text=User"

var (
	// ErrNotFound is returned by repositories when no user matches.
	ErrNotFound = apperr.Missing("User not found")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = apperr.Duplicate("User already exists Try logging in instead")
)

// User represents a registered account. Projects is the user-side mirror of
// the memberships recorded on each project.
type User struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	PasswordHash     string           `json:"-"`
	Avatar           string           `json:"profilePic"`
	Projects         []membership.Ref `json:"projects"`
	RefreshTokenHash string           `json:"-"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	c.Projects = append([]membership.Ref(nil), u.Projects...)
	return &c
}

// SignupInput holds the fields required to register.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateInput holds a partial profile update. Empty fields are left unchanged.
type UpdateInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	ProfilePic string `json:"profilePic"`
}

// Session is the result of a successful login or refresh.
type Session struct {
	User   *User
	Tokens auth.TokenPair
}
