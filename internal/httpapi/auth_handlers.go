package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"estatedesk.org/internal/auth"
)

type loginRequest struct {
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type sessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Identity  auth.Identity `json:"identity"`
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "role must be manager or agent")
		return
	}

	sess, err := a.auth.Authenticate(r.Context(), role, req.Identifier, req.Secret)
	if err != nil {
		a.writeLoginError(w, r, role, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		Identity:  sess.Identity,
	})
}

// writeLoginError maps validation failures to status codes while keeping the
// body limited to the collapsed per-role message.
func (a *API) writeLoginError(w http.ResponseWriter, r *http.Request, role auth.Role, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "identifier and password are required")
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "300")
		writeError(w, r, http.StatusTooManyRequests, auth.UserMessage(role, err))
	case errors.Is(err, auth.ErrAccountDeactivated):
		writeError(w, r, http.StatusForbidden, auth.UserMessage(role, err))
	case errors.Is(err, auth.ErrTransport):
		writeError(w, r, http.StatusInternalServerError, auth.UserMessage(role, err))
	default:
		writeError(w, r, http.StatusUnauthorized, auth.UserMessage(role, err))
	}
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := a.auth.Register(r.Context(), auth.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "valid email and password are required")
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "an account with this email already exists")
		default:
			writeError(w, r, http.StatusInternalServerError, "signup failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"identity": identity,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token, _ := auth.TokenFromContext(r.Context())
	if err := a.auth.RevokeToken(r.Context(), token); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": identity,
	})
}

type provisionAgentRequest struct {
	AccountID string `json:"account_id"`
	AgentCode string `json:"agent_code"`
	Password  string `json:"password"`
}

func (a *API) handleProvisionAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok || caller.Role != auth.RoleManager {
		writeError(w, r, http.StatusForbidden, "manager role required")
		return
	}

	var req provisionAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := a.auth.ProvisionAgent(r.Context(), req.AccountID, req.AgentCode, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "account not found")
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "agent code already in use")
		default:
			writeError(w, r, http.StatusInternalServerError, "agent provisioning failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         profile.ID,
		"agent_code": profile.AgentCode,
		"account_id": profile.AccountID,
		"active":     profile.Active,
	})
}

func (a *API) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.recommender == nil {
		writeError(w, r, http.StatusNotFound, "recommendations not configured")
		return
	}
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, "no active session")
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	budget := parseFloat(q.Get("max_budget"))
	limit := parseInt(q.Get("limit"), 10)

	matches := a.recommender.Recommend(query, budget, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
	})
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func parseInt(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
