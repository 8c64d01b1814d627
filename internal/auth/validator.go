package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estatedesk.org/internal/audit"
	"estatedesk.org/internal/obs"
	"estatedesk.org/internal/ratelimit"
)

const (
	defaultLoginMaxAttempts = 5
	defaultLoginWindow      = 5 * time.Minute
)

// Validator decides accept/reject for an identifier/secret pair. Each attempt
// runs a strictly ordered sequence: input check, rate check, lookup, active
// check, linkage check, secret compare. Every branch records a security event
// before returning, and all credential-guessing failures collapse onto
// ErrInvalidCredentials.
type Validator struct {
	store    Store
	limiter  *ratelimit.Limiter
	recorder audit.Recorder
	verifier Verifier
	flows    map[Role]flow

	maxAttempts int
	window      time.Duration
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithVerifier installs a secret comparison strategy.
func WithVerifier(v Verifier) ValidatorOption {
	return func(val *Validator) {
		if v != nil {
			val.verifier = v
		}
	}
}

// WithAttemptPolicy overrides the per-identifier attempt cap and window.
func WithAttemptPolicy(maxAttempts int, window time.Duration) ValidatorOption {
	return func(val *Validator) {
		if maxAttempts > 0 {
			val.maxAttempts = maxAttempts
		}
		if window > 0 {
			val.window = window
		}
	}
}

// NewValidator constructs a Validator with the built-in role flows.
func NewValidator(store Store, limiter *ratelimit.Limiter, recorder audit.Recorder, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store:       store,
		limiter:     limiter,
		recorder:    recorder,
		verifier:    AutoVerifier{},
		maxAttempts: defaultLoginMaxAttempts,
		window:      defaultLoginWindow,
	}
	v.flows = map[Role]flow{
		RoleManager: managerFlow{},
		RoleAgent:   agentFlow{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs one terminal validation attempt for the given role.
func (v *Validator) Validate(ctx context.Context, role Role, identifier, secret string) (Identity, error) {
	f, ok := v.flows[role]
	if !ok {
		return Identity{}, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}

	// Input check fails fast, before any store access or limiter consumption.
	identifier = f.normalize(identifier)
	if identifier == "" || secret == "" {
		return Identity{}, fmt.Errorf("%w: identifier and password are required", ErrInvalidInput)
	}

	names := f.actions()

	if !v.limiter.Allow("login_"+identifier, v.maxAttempts, v.window) {
		v.recorder.Record(ctx, "rate_limit_exceeded", map[string]any{
			"role":       string(role),
			"identifier": identifier,
		})
		obs.ObserveLogin(string(role), "rate_limited")
		return Identity{}, ErrRateLimited
	}

	cand, err := f.resolve(ctx, v.store, identifier)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			v.recorder.Record(ctx, names.notFound, map[string]any{"identifier": identifier})
			obs.ObserveLogin(string(role), "not_found")
			return Identity{}, ErrInvalidCredentials
		default:
			v.recorder.Record(ctx, "credential_store_error", map[string]any{
				"role":       string(role),
				"identifier": identifier,
				"error":      err.Error(),
			})
			obs.ObserveLogin(string(role), "store_error")
			return Identity{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	if !cand.active {
		v.recorder.Record(ctx, names.deactivated, map[string]any{"identifier": identifier})
		obs.ObserveLogin(string(role), "deactivated")
		return Identity{}, ErrAccountDeactivated
	}

	identity, err := cand.link(ctx)
	if err != nil {
		var le *linkageError
		if errors.As(err, &le) {
			v.recorder.Record(ctx, le.action, map[string]any{"identifier": identifier})
			obs.ObserveLogin(string(role), "linkage_broken")
			return Identity{}, ErrInvalidCredentials
		}
		v.recorder.Record(ctx, "credential_store_error", map[string]any{
			"role":       string(role),
			"identifier": identifier,
			"error":      err.Error(),
		})
		obs.ObserveLogin(string(role), "store_error")
		return Identity{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if err := v.verifier.Verify(secret, cand.hash); err != nil {
		v.recorder.Record(ctx, names.mismatch, map[string]any{"identifier": identifier})
		obs.ObserveLogin(string(role), "password_mismatch")
		return Identity{}, ErrInvalidCredentials
	}

	v.recorder.Record(ctx, names.success, map[string]any{
		"identifier":  identifier,
		"identity_id": identity.ID,
	})
	obs.ObserveLogin(string(role), "success")
	return identity, nil
}

// candidate is the credential record selected by a role flow. link performs
// the role's linkage check (if any) and produces the identity; it runs after
// the active check and before the secret compare.
type candidate struct {
	hash   string
	active bool
	link   func(ctx context.Context) (Identity, error)
}

type flowActions struct {
	notFound    string
	deactivated string
	mismatch    string
	success     string
}

// flow declares a role's identifier normalization and lookup/linkage sequence.
// Adding a role means adding a flow, not touching the shared state machine.
type flow interface {
	normalize(identifier string) string
	actions() flowActions
	resolve(ctx context.Context, store Store, identifier string) (candidate, error)
}

type linkageError struct{ action string }

func (e *linkageError) Error() string { return e.action }

// managerFlow authenticates back-office managers by email.
type managerFlow struct{}

func (managerFlow) normalize(identifier string) string {
	return strings.TrimSpace(strings.ToLower(identifier))
}

func (managerFlow) actions() flowActions {
	return flowActions{
		notFound:    "manager_email_not_found",
		deactivated: "manager_account_deactivated",
		mismatch:    "manager_password_mismatch",
		success:     "successful_manager_login",
	}
}

func (managerFlow) resolve(ctx context.Context, store Store, identifier string) (candidate, error) {
	acct, err := store.Accounts(ctx).FindByEmail(ctx, identifier)
	if err != nil {
		return candidate{}, err
	}
	if acct.Role != RoleManager {
		// A non-manager account behind a manager login is indistinguishable
		// from an unknown email as far as the caller is concerned.
		return candidate{}, ErrNotFound
	}
	identity := acct.identity()
	return candidate{
		hash:   acct.PasswordHash,
		active: acct.Active,
		link:   func(context.Context) (Identity, error) { return identity, nil },
	}, nil
}

// agentFlow authenticates sales agents by agent code. Agent codes are matched
// exactly as supplied; the predecessor system never case-normalized them and
// existing codes rely on that.
type agentFlow struct{}

func (agentFlow) normalize(identifier string) string {
	return strings.TrimSpace(identifier)
}

func (agentFlow) actions() flowActions {
	return flowActions{
		notFound:    "agent_id_not_found",
		deactivated: "agent_account_deactivated",
		mismatch:    "agent_password_mismatch",
		success:     "successful_agent_login",
	}
}

func (agentFlow) resolve(ctx context.Context, store Store, identifier string) (candidate, error) {
	profile, err := store.Agents(ctx).FindByCode(ctx, identifier)
	if err != nil {
		return candidate{}, err
	}
	return candidate{
		hash:   profile.PasswordHash,
		active: profile.Active,
		link: func(ctx context.Context) (Identity, error) {
			if profile.AccountID == "" {
				return Identity{}, &linkageError{action: "agent_user_account_not_found"}
			}
			acct, err := store.Accounts(ctx).Find(ctx, profile.AccountID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return Identity{}, &linkageError{action: "agent_user_account_not_found"}
				}
				return Identity{}, err
			}
			if !acct.Active {
				return Identity{}, &linkageError{action: "agent_user_account_deactivated"}
			}
			if acct.Role != RoleAgent {
				return Identity{}, &linkageError{action: "agent_user_account_role_mismatch"}
			}
			return acct.identity(), nil
		},
	}, nil
}
