package user

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole maps an optional role string to a Role; empty means RoleUser.
func ParseRole(s string) (Role, bool) {
	if strings.TrimSpace(s) == "" {
		return RoleUser, true
	}

	r := Role(strings.ToLower(strings.TrimSpace(s)))

	return r, r.IsValid()
}

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // never expose hash in JSON
	Role         Role   `json:"role"`
	// nil means no active refresh session (logged out or revoked)
	RefreshTokenHash *string   `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (u User) HasSession() bool {
	return u.RefreshTokenHash != nil && *u.RefreshTokenHash != ""
}

type Public struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u User) Public() Public {
	return Public{ID: u.ID, Email: u.Email, Role: u.Role}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
