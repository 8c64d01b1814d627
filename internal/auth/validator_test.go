package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"estatedesk.org/internal/ratelimit"
)

// stubStore is an in-memory Store used by validator and session tests. It
// counts lookups so tests can assert the restore path never touches it.
type stubStore struct {
	mu       sync.Mutex
	byID     map[string]*Account
	byEmail  map[string]*Account
	byCode   map[string]*AgentProfile
	revoked  map[string]bool
	failWith error
	lookups  int
}

func newStubStore() *stubStore {
	return &stubStore{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]*Account),
		byCode:  make(map[string]*AgentProfile),
		revoked: make(map[string]bool),
	}
}

func (s *stubStore) addAccount(a *Account) {
	s.byID[a.ID] = a
	if a.Email != "" {
		s.byEmail[a.Email] = a
	}
}

func (s *stubStore) addAgent(p *AgentProfile) { s.byCode[p.AgentCode] = p }

func (s *stubStore) countLookup() {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
}

func (s *stubStore) Accounts(context.Context) AccountStore       { return stubAccounts{s} }
func (s *stubStore) Agents(context.Context) AgentStore           { return stubAgents{s} }
func (s *stubStore) Revocations(context.Context) RevocationStore { return stubRevocations{s} }

type stubAccounts struct{ *stubStore }

func (s stubAccounts) Create(ctx context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[a.Email]; ok {
		return ErrAlreadyExists
	}
	s.byID[a.ID] = a
	s.byEmail[a.Email] = a
	return nil
}

func (s stubAccounts) Find(ctx context.Context, id string) (*Account, error) {
	s.countLookup()
	if s.failWith != nil {
		return nil, s.failWith
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s stubAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.countLookup()
	if s.failWith != nil {
		return nil, s.failWith
	}
	a, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s stubAccounts) SetActive(ctx context.Context, id string, active bool) error { return nil }
func (s stubAccounts) UpdatePassword(ctx context.Context, id, hash string) error   { return nil }

type stubAgents struct{ *stubStore }

func (s stubAgents) Create(ctx context.Context, p *AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[p.AgentCode]; ok {
		return ErrAlreadyExists
	}
	s.byCode[p.AgentCode] = p
	return nil
}

func (s stubAgents) FindByCode(ctx context.Context, code string) (*AgentProfile, error) {
	s.countLookup()
	if s.failWith != nil {
		return nil, s.failWith
	}
	p, ok := s.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

type stubRevocations struct{ *stubStore }

func (s stubRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = true
	return nil
}

func (s stubRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[tokenID], nil
}

// captureRecorder collects audit actions for assertions.
type captureRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (c *captureRecorder) Record(_ context.Context, action string, _ map[string]any) {
	c.mu.Lock()
	c.actions = append(c.actions, action)
	c.mu.Unlock()
}

func (c *captureRecorder) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.actions) == 0 {
		t.Fatal("expected at least one audit event")
	}
	return c.actions[len(c.actions)-1]
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func newTestValidator(t *testing.T, store Store, rec *captureRecorder, clock func() time.Time) *Validator {
	t.Helper()
	limiter := ratelimit.New(ratelimit.WithClock(clock))
	return NewValidator(store, limiter, rec)
}

func seedAgent(t *testing.T, store *stubStore, secret string, agentActive, accountActive bool) {
	t.Helper()
	store.addAccount(&Account{
		ID:          "acct-1",
		Email:       "sara@example.com",
		DisplayName: "Sara",
		Role:        RoleAgent,
		Active:      accountActive,
	})
	store.addAgent(&AgentProfile{
		ID:           "agent-1",
		AgentCode:    "S101",
		PasswordHash: mustHash(t, secret),
		Active:       agentActive,
		AccountID:    "acct-1",
	})
}

func TestAgentLoginScenario(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newStubStore()
	seedAgent(t, store, "correct", true, true)
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, func() time.Time { return now })
	ctx := context.Background()

	identity, err := v.Validate(ctx, RoleAgent, "S101", "correct")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if identity.ID != "acct-1" || identity.Role != RoleAgent {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if rec.last(t) != "successful_agent_login" {
		t.Fatalf("unexpected audit action: %s", rec.last(t))
	}

	_, err = v.Validate(ctx, RoleAgent, "S101", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if got := UserMessage(RoleAgent, err); got != "Invalid Sales Agent ID or password" {
		t.Fatalf("unexpected user message: %q", got)
	}
	if rec.last(t) != "agent_password_mismatch" {
		t.Fatalf("unexpected audit action: %s", rec.last(t))
	}
}

func TestRateLimitBlocksSixthAttemptEvenWithCorrectSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newStubStore()
	seedAgent(t, store, "correct", true, true)
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := v.Validate(ctx, RoleAgent, "S101", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	_, err := v.Validate(ctx, RoleAgent, "S101", "correct")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if rec.last(t) != "rate_limit_exceeded" {
		t.Fatalf("unexpected audit action: %s", rec.last(t))
	}
	if msg := UserMessage(RoleAgent, err); msg != "Too many login attempts. Please try again in a few minutes." {
		t.Fatalf("unexpected user message: %q", msg)
	}

	// After the window elapses the correct secret works again.
	now = now.Add(5*time.Minute + time.Second)
	if _, err := v.Validate(ctx, RoleAgent, "S101", "correct"); err != nil {
		t.Fatalf("expected success after window reset, got %v", err)
	}
}

func TestEnumerationResistance(t *testing.T) {
	store := newStubStore()
	seedAgent(t, store, "correct", true, true)
	store.addAccount(&Account{
		ID:           "mgr-1",
		Email:        "boss@example.com",
		Role:         RoleManager,
		PasswordHash: mustHash(t, "managerpw"),
		Active:       true,
	})
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)
	ctx := context.Background()

	_, errUnknown := v.Validate(ctx, RoleAgent, "NOPE", "whatever")
	_, errWrongSecret := v.Validate(ctx, RoleAgent, "S101", "wrong")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrongSecret, ErrInvalidCredentials) {
		t.Fatalf("both failures must be invalid credentials: %v / %v", errUnknown, errWrongSecret)
	}
	if UserMessage(RoleAgent, errUnknown) != UserMessage(RoleAgent, errWrongSecret) {
		t.Fatal("unknown identifier and wrong secret must produce identical messages")
	}

	_, errUnknownMgr := v.Validate(ctx, RoleManager, "ghost@example.com", "x")
	_, errWrongMgr := v.Validate(ctx, RoleManager, "boss@example.com", "x")
	if UserMessage(RoleManager, errUnknownMgr) != UserMessage(RoleManager, errWrongMgr) {
		t.Fatal("manager flow must not reveal identifier existence")
	}
}

func TestDeactivatedAccountAlwaysFails(t *testing.T) {
	store := newStubStore()
	seedAgent(t, store, "correct", false, true)
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)

	_, err := v.Validate(context.Background(), RoleAgent, "S101", "correct")
	if !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected deactivated, got %v", err)
	}
	if rec.last(t) != "agent_account_deactivated" {
		t.Fatalf("unexpected audit action: %s", rec.last(t))
	}
	if msg := UserMessage(RoleAgent, err); msg != "Your account has been deactivated. Please contact your administrator." {
		t.Fatalf("unexpected user message: %q", msg)
	}
}

func TestBrokenLinkageStaysGeneric(t *testing.T) {
	store := newStubStore()
	// Linked account exists but is deactivated.
	seedAgent(t, store, "correct", true, false)
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)

	_, err := v.Validate(context.Background(), RoleAgent, "S101", "correct")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected generic invalid credentials, got %v", err)
	}
	if rec.last(t) != "agent_user_account_deactivated" {
		t.Fatalf("specific reason belongs in the audit log, got %s", rec.last(t))
	}
	if msg := UserMessage(RoleAgent, err); msg != "Invalid Sales Agent ID or password" {
		t.Fatalf("linkage failure leaked into the user message: %q", msg)
	}
}

func TestMissingLinkage(t *testing.T) {
	store := newStubStore()
	store.addAgent(&AgentProfile{
		ID:           "agent-2",
		AgentCode:    "S202",
		PasswordHash: mustHash(t, "pw"),
		Active:       true,
		AccountID:    "",
	})
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)

	_, err := v.Validate(context.Background(), RoleAgent, "S202", "pw")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if rec.last(t) != "agent_user_account_not_found" {
		t.Fatalf("unexpected audit action: %s", rec.last(t))
	}
}

func TestInputErrorsSkipLimiterAndStore(t *testing.T) {
	store := newStubStore()
	seedAgent(t, store, "correct", true, true)
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := v.Validate(ctx, RoleAgent, "S101", ""); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	}
	if store.lookups != 0 {
		t.Fatalf("input errors must not reach the store, saw %d lookups", store.lookups)
	}
	// The limiter was never consumed: a real attempt still succeeds.
	if _, err := v.Validate(ctx, RoleAgent, "S101", "correct"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestIdentifierNormalizationPerRole(t *testing.T) {
	store := newStubStore()
	seedAgent(t, store, "correct", true, true)
	store.addAccount(&Account{
		ID:           "mgr-1",
		Email:        "boss@example.com",
		Role:         RoleManager,
		PasswordHash: mustHash(t, "managerpw"),
		Active:       true,
	})
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)
	ctx := context.Background()

	// Emails are lowercased and trimmed before lookup.
	if _, err := v.Validate(ctx, RoleManager, "  BOSS@Example.COM ", "managerpw"); err != nil {
		t.Fatalf("normalized email should authenticate: %v", err)
	}
	// Agent codes are matched exactly as supplied.
	if _, err := v.Validate(ctx, RoleAgent, "s101", "correct"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("lowercased agent code must not match: %v", err)
	}
}

func TestTransportErrorSurfacesGenerically(t *testing.T) {
	store := newStubStore()
	store.failWith = errors.New("connection refused")
	rec := &captureRecorder{}
	v := newTestValidator(t, store, rec, time.Now)

	_, err := v.Validate(context.Background(), RoleAgent, "S101", "pw")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if rec.last(t) != "credential_store_error" {
		t.Fatalf("unexpected audit action: %s", rec.last(t))
	}
	if msg := UserMessage(RoleAgent, err); msg != "Authentication failed. Please try again." {
		t.Fatalf("unexpected user message: %q", msg)
	}
}

func TestUnsupportedRole(t *testing.T) {
	v := newTestValidator(t, newStubStore(), &captureRecorder{}, time.Now)
	if _, err := v.Validate(context.Background(), Role("admin"), "x", "y"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
