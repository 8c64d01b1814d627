package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Lookups return ErrNotFound for a missing record, which callers must keep
// distinguishable from a transport failure.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	Agents(ctx context.Context) AgentStore
	Revocations(ctx context.Context) RevocationStore
}

// AccountStore manages generic user accounts.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// AgentStore manages sales agent credential profiles.
type AgentStore interface {
	Create(ctx context.Context, p *AgentProfile) error
	FindByCode(ctx context.Context, agentCode string) (*AgentProfile, error)
}

// RevocationStore tracks session tokens invalidated before their expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
