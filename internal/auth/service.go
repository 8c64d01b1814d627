package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"estatedesk.org/internal/audit"
	"estatedesk.org/internal/ids"
)

// Authenticator resolves credentials into a live session. The local Service
// implements it directly; remote callers implement it over HTTP.
type Authenticator interface {
	Authenticate(ctx context.Context, role Role, identifier, secret string) (*Session, error)
}

// Service ties the credential validator to token issuance, account
// provisioning and session revocation. It is constructed once and handed to
// whatever layer needs it; there is no ambient singleton.
type Service struct {
	store     Store
	validator *Validator
	issuer    *TokenIssuer
	recorder  audit.Recorder
}

// NewService constructs the auth service.
func NewService(store Store, validator *Validator, issuer *TokenIssuer, recorder audit.Recorder) (*Service, error) {
	if store == nil || validator == nil || issuer == nil {
		return nil, errors.New("auth: store, validator and issuer are required")
	}
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Service{store: store, validator: validator, issuer: issuer, recorder: recorder}, nil
}

// Authenticate validates credentials and mints a session on success.
func (s *Service) Authenticate(ctx context.Context, role Role, identifier, secret string) (*Session, error) {
	identity, err := s.validator.Validate(ctx, role, identifier, secret)
	if err != nil {
		return nil, err
	}
	token, issuedAt, expiresAt, err := s.issuer.Issue(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", ErrTransport, err)
	}
	return &Session{
		Token:     token,
		Identity:  identity,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken checks a bearer token's signature, claims and revocation state
// and resolves the identity it carries. No account-store lookup is performed;
// the claims are the source of truth for the token's lifetime.
func (s *Service) VerifyToken(ctx context.Context, token string) (Identity, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if claims.ID != "" {
		revoked, err := s.store.Revocations(ctx).IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if revoked {
			return Identity{}, ErrInvalidToken
		}
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		ID:          claims.Subject,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
		Role:        role,
	}, nil
}

// RevokeToken invalidates a session token server-side. Unknown or malformed
// tokens are a no-op so sign-out stays idempotent.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil
	}
	if claims.ID == "" {
		return nil
	}
	if err := s.store.Revocations(ctx).Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.recorder.Record(ctx, "session_revoked", map[string]any{
		"identity_id": claims.Subject,
		"token_id":    claims.ID,
	})
	return nil
}

// RegisterParams describes a new generic user account.
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
	Role        Role
}

// Register provisions an account and returns its identity. The caller signs
// in separately; registration never hands out a session by itself.
func (s *Service) Register(ctx context.Context, p RegisterParams) (Identity, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Password) == "" {
		return Identity{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if p.Role == "" {
		p.Role = RoleManager
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return Identity{}, err
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return Identity{}, err
	}
	acct := &Account{
		ID:           ids.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(p.DisplayName),
		Role:         p.Role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Accounts(ctx).Create(ctx, acct); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Identity{}, ErrAlreadyExists
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.recorder.Record(ctx, "account_created", map[string]any{
		"identity_id": acct.ID,
		"role":        string(acct.Role),
	})
	return acct.identity(), nil
}

// ProvisionAgent creates a sales agent credential profile linked to an
// existing agent account.
func (s *Service) ProvisionAgent(ctx context.Context, accountID, agentCode, password string) (*AgentProfile, error) {
	accountID = strings.TrimSpace(accountID)
	agentCode = strings.TrimSpace(agentCode)
	if accountID == "" || agentCode == "" {
		return nil, fmt.Errorf("%w: account_id and agent_code are required", ErrInvalidInput)
	}
	acct, err := s.store.Accounts(ctx).Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if acct.Role != RoleAgent {
		return nil, fmt.Errorf("%w: linked account must have the agent role", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	profile := &AgentProfile{
		ID:           ids.New(),
		AgentCode:    agentCode,
		PasswordHash: hash,
		Active:       true,
		AccountID:    acct.ID,
	}
	if err := s.store.Agents(ctx).Create(ctx, profile); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.recorder.Record(ctx, "agent_profile_created", map[string]any{
		"identity_id": acct.ID,
		"agent_code":  agentCode,
	})
	return profile, nil
}
