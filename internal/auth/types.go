package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account kinds that can authenticate.
type Role string

const (
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
)

// ParseRole maps a wire value onto a known role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(s))) {
	case RoleManager:
		return RoleManager, nil
	case RoleAgent:
		return RoleAgent, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, s)
	}
}

// Identity is a resolved, authenticated principal. It exists only after
// successful credential validation and is immutable for the lifetime of its
// session; re-authentication produces a new Identity.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// Account is the durable generic user record. For managers it is the
// credential record itself; for agents it is the linked secondary record an
// agent profile must resolve to.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgentProfile is the role-specific credential record for sales agents. The
// agent code is the public login handle; AccountID links the profile to its
// generic user account.
type AgentProfile struct {
	ID           string
	AgentCode    string
	PasswordHash string
	Active       bool
	AccountID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the live authenticated state: a bearer token plus the identity
// it was minted for.
type Session struct {
	Token     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity builds the principal an account resolves to.
func (a *Account) identity() Identity {
	return Identity{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Role:        a.Role,
	}
}
