package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"estatedesk.org/internal/kv"
)

// KV keys holding the persisted session. Two keys: the serialized identity
// envelope and the raw bearer token.
const (
	kvIdentityKey = "auth.identity"
	kvTokenKey    = "auth.token"
)

// persistedIdentity is the envelope stored under kvIdentityKey.
type persistedIdentity struct {
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenChecker decides whether a persisted token is still worth restoring.
// The local service checks signature, expiry and revocation; remote clients
// that never hold the signing secret fall back to a structural check.
type TokenChecker interface {
	Check(ctx context.Context, token string) error
}

// TokenCheckerFunc adapts a function to TokenChecker.
type TokenCheckerFunc func(ctx context.Context, token string) error

func (f TokenCheckerFunc) Check(ctx context.Context, token string) error { return f(ctx, token) }

// SessionManager owns the single current session of a client process. All
// mutation goes through one mutex; watchers observe identity changes through
// a fanout of channels.
type SessionManager struct {
	authn   Authenticator
	kv      kv.Store
	checker TokenChecker
	now     func() time.Time

	mu      sync.Mutex
	session *Session

	watchMu  sync.Mutex
	watchers map[int]chan *Identity
	nextID   int
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithTokenChecker installs the restore-time token check.
func WithTokenChecker(c TokenChecker) SessionOption {
	return func(m *SessionManager) {
		if c != nil {
			m.checker = c
		}
	}
}

// WithSessionClock overrides the time source (useful for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewSessionManager constructs a signed-out manager. The default token check
// is structural only (shape and expiry, no signature); install the service's
// verifier via WithTokenChecker where the signing secret is available.
func NewSessionManager(authn Authenticator, store kv.Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		authn:    authn,
		kv:       store,
		now:      time.Now,
		watchers: make(map[int]chan *Identity),
	}
	m.checker = TokenCheckerFunc(func(_ context.Context, token string) error {
		return CheckTokenShape(token, m.now())
	})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SignIn validates credentials and establishes the session. On failure the
// in-memory session and the persisted copy are left untouched.
func (m *SessionManager) SignIn(ctx context.Context, role Role, identifier, secret string) (*Session, error) {
	sess, err := m.authn.Authenticate(ctx, role, identifier, secret)
	if err != nil {
		return nil, err
	}
	if err := m.persist(sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	identity := sess.Identity
	m.publish(&identity)
	return sess, nil
}

// SignOut clears the in-memory session and removes the persisted copy. It is
// idempotent: signing out with no active session is a no-op.
func (m *SessionManager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	had := m.session != nil
	m.session = nil
	m.mu.Unlock()

	// Remove both keys regardless of in-memory state so stale remnants from
	// an earlier process cannot survive a sign-out.
	if err := m.kv.Remove(kvTokenKey); err != nil {
		return err
	}
	if err := m.kv.Remove(kvIdentityKey); err != nil {
		return err
	}
	if had {
		m.publish(nil)
	}
	return nil
}

// Restore rehydrates the session persisted by an earlier process. A missing,
// malformed or stale record leaves the manager unauthenticated and clears any
// partial remnants. Restore never contacts the account store.
func (m *SessionManager) Restore(ctx context.Context) error {
	token, okToken, err := m.kv.Get(kvTokenKey)
	if err != nil {
		return err
	}
	raw, okIdentity, err := m.kv.Get(kvIdentityKey)
	if err != nil {
		return err
	}
	if !okToken || !okIdentity {
		return m.clearRemnants()
	}

	var env persistedIdentity
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return m.clearRemnants()
	}
	if env.Identity.ID == "" {
		return m.clearRemnants()
	}
	if _, err := ParseRole(string(env.Identity.Role)); err != nil {
		return m.clearRemnants()
	}
	if err := m.checker.Check(ctx, token); err != nil {
		return m.clearRemnants()
	}

	sess := &Session{
		Token:     token,
		Identity:  env.Identity,
		IssuedAt:  env.IssuedAt,
		ExpiresAt: env.ExpiresAt,
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	identity := sess.Identity
	m.publish(&identity)
	return nil
}

// Current returns the authenticated identity, if any.
func (m *SessionManager) Current() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Identity{}, false
	}
	return m.session.Identity, true
}

// Token returns the live session token, if any.
func (m *SessionManager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", false
	}
	return m.session.Token, true
}

// Watch registers a subscriber for identity changes. The channel receives the
// new identity on sign-in and restore, and nil on sign-out; it is closed when
// ctx ends.
func (m *SessionManager) Watch(ctx context.Context) <-chan *Identity {
	ch := make(chan *Identity, 4)

	m.watchMu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	m.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		m.watchMu.Lock()
		delete(m.watchers, id)
		close(ch)
		m.watchMu.Unlock()
	}()

	return ch
}

func (m *SessionManager) publish(identity *Identity) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- identity:
		default:
			// Slow subscriber; drop rather than stall the sign-in path.
		}
	}
}

func (m *SessionManager) persist(sess *Session) error {
	env := persistedIdentity{
		Identity:  sess.Identity,
		IssuedAt:  sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := m.kv.Set(kvIdentityKey, string(data)); err != nil {
		return err
	}
	return m.kv.Set(kvTokenKey, sess.Token)
}

func (m *SessionManager) clearRemnants() error {
	if err := m.kv.Remove(kvTokenKey); err != nil {
		return err
	}
	return m.kv.Remove(kvIdentityKey)
}
