// Package client implements the authentication API over HTTP for CLI and
// remote callers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"estatedesk.org/internal/auth"
)

var _ auth.Authenticator = (*Client)(nil)

// Client talks to the estatedesk API. It satisfies auth.Authenticator so a
// SessionManager can run on top of it without holding the signing secret.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginPayload struct {
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type sessionPayload struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Identity  auth.Identity `json:"identity"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Authenticate performs a login round trip. Server-side validation outcomes
// are mapped back onto the auth package's sentinel errors so callers branch
// the same way regardless of transport.
func (c *Client) Authenticate(ctx context.Context, role auth.Role, identifier, secret string) (*auth.Session, error) {
	body, err := json.Marshal(loginPayload{
		Role:       string(role),
		Identifier: identifier,
		Secret:     secret,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/v1/auth/login", body, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, loginError(resp)
	}
	var payload sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode login response: %v", auth.ErrTransport, err)
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("%w: empty token in login response", auth.ErrTransport)
	}
	return &auth.Session{
		Token:     payload.Token,
		Identity:  payload.Identity,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: payload.ExpiresAt,
	}, nil
}

// Logout revokes the token server-side. An already-invalid token is treated
// as success; sign-out stays idempotent end to end.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.post(ctx, "/v1/auth/logout", nil, token)
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrTransport, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusUnauthorized:
		return nil
	default:
		return fmt.Errorf("%w: logout status %d", auth.ErrTransport, resp.StatusCode)
	}
}

// Session resolves the identity behind token via the server.
func (c *Client) Session(ctx context.Context, token string) (auth.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/auth/session", nil)
	if err != nil {
		return auth.Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", auth.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return auth.Identity{}, auth.ErrInvalidToken
	default:
		return auth.Identity{}, fmt.Errorf("%w: session status %d", auth.ErrTransport, resp.StatusCode)
	}
	var payload struct {
		Identity auth.Identity `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return auth.Identity{}, fmt.Errorf("%w: decode session response: %v", auth.ErrTransport, err)
	}
	return payload.Identity, nil
}

// Checker returns a restore-time token check backed by the server.
func (c *Client) Checker() auth.TokenChecker {
	return auth.TokenCheckerFunc(func(ctx context.Context, token string) error {
		_, err := c.Session(ctx, token)
		return err
	})
}

func (c *Client) post(ctx context.Context, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

func loginError(resp *http.Response) error {
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	msg := strings.TrimSpace(payload.Error)

	var base error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		base = auth.ErrInvalidInput
	case http.StatusUnauthorized:
		base = auth.ErrInvalidCredentials
	case http.StatusForbidden:
		base = auth.ErrAccountDeactivated
	case http.StatusTooManyRequests:
		base = auth.ErrRateLimited
	default:
		base = auth.ErrTransport
	}
	if msg == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, msg)
}
