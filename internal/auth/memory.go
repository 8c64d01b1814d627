package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps accounts, agent profiles and revocations in process
// memory. It backs tests and the no-database development mode.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	byEmail  map[string]string
	agents   map[string]*AgentProfile
	revoked  map[string]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
		agents:   make(map[string]*AgentProfile),
		revoked:  make(map[string]time.Time),
	}
}

func (s *InMemoryStore) Accounts(context.Context) AccountStore       { return memAccounts{s} }
func (s *InMemoryStore) Agents(context.Context) AgentStore           { return memAgents{s} }
func (s *InMemoryStore) Revocations(context.Context) RevocationStore { return memRevocations{s} }

type memAccounts struct{ *InMemoryStore }

func (s memAccounts) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[a.Email]; ok {
		return ErrAlreadyExists
	}
	if _, ok := s.accounts[a.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *a
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.accounts[cp.ID] = &cp
	if cp.Email != "" {
		s.byEmail[cp.Email] = cp.ID
	}
	return nil
}

func (s memAccounts) Find(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s memAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s memAccounts) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Active = active
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s memAccounts) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

type memAgents struct{ *InMemoryStore }

func (s memAgents) Create(_ context.Context, p *AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[p.AgentCode]; ok {
		return ErrAlreadyExists
	}
	cp := *p
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.agents[cp.AgentCode] = &cp
	return nil
}

func (s memAgents) FindByCode(_ context.Context, agentCode string) (*AgentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.agents[agentCode]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type memRevocations struct{ *InMemoryStore }

func (s memRevocations) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = expiresAt
	return nil
}

func (s memRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}
