package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	// Validation outcomes. Internally distinct reasons (not found, linkage
	// broken, secret mismatch) all collapse onto ErrInvalidCredentials; the
	// distinctions survive only in the security event log.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDeactivated = errors.New("auth: account deactivated")
	ErrRateLimited        = errors.New("auth: rate limited")
	ErrTransport          = errors.New("auth: credential store unavailable")

	ErrInvalidToken = errors.New("auth: invalid token")
)

const (
	msgRateLimited   = "Too many login attempts. Please try again in a few minutes."
	msgDeactivated   = "Your account has been deactivated. Please contact your administrator."
	msgTransport     = "Authentication failed. Please try again."
	msgInvalidAgent  = "Invalid Sales Agent ID or password"
	msgInvalidEmail  = "Invalid email or password"
)

// UserMessage maps a validation error onto the caller-facing message. Every
// credential-guessing signal collapses onto one generic message per role so
// the response never reveals whether the identifier or the secret was wrong.
func UserMessage(role Role, err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, ErrAccountDeactivated):
		return msgDeactivated
	case errors.Is(err, ErrTransport):
		return msgTransport
	default:
		if role == RoleAgent {
			return msgInvalidAgent
		}
		return msgInvalidEmail
	}
}
