package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/technosupport/ts-license/internal/auth"
	"github.com/technosupport/ts-license/internal/middleware"
	"github.com/technosupport/ts-license/internal/session"
	"github.com/technosupport/ts-license/internal/tokens"
)

// AuthHandler issues and revokes admin dashboard tokens. There is a
// single configured admin identity; its password is stored as an
// argon2id hash, never plaintext.
type AuthHandler struct {
	Tokens        *tokens.Manager
	Session       *session.Manager
	Blacklist     auth.TokenBlacklist
	AdminUser     string
	AdminPassHash string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Dummy hash keeps the verify cost constant when the username is wrong.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$ZHVtbXloYXNoZHVtbXloYXNoZHVtbXloYXNoZHVtbXk"

// POST /api/admin/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.genericError(w)
		return
	}

	locked, err := h.Session.CheckLockout(r.Context(), req.Username)
	if err != nil || locked {
		h.genericError(w)
		return
	}

	userMatch := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.AdminUser)) == 1

	hash := h.AdminPassHash
	if !userMatch {
		hash = dummyHash
	}
	passMatch, err := auth.CheckPassword(req.Password, hash)
	if err != nil || !passMatch || !userMatch {
		h.failWithLockout(w, r, req.Username)
		return
	}

	token, err := h.Tokens.GenerateAdminToken(req.Username)
	if err != nil {
		h.genericError(w)
		return
	}

	_ = h.Session.ClearFailures(r.Context(), req.Username)
	respondJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// POST /api/admin/logout (admin-gated)
// Blacklists the presented token's jti for the full token TTL; the exact
// remaining lifetime is shorter but the looser bound costs one redis key.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAdminContext(r.Context())
	if !ok {
		h.genericError(w)
		return
	}

	if err := h.Blacklist.AddToBlacklist(r.Context(), ac.TokenID, tokens.AdminTokenTTL); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) genericError(w http.ResponseWriter) {
	respondError(w, http.StatusUnauthorized, "Invalid credentials")
}

func (h *AuthHandler) failWithLockout(w http.ResponseWriter, r *http.Request, username string) {
	_ = h.Session.RecordFailedAttempt(r.Context(), username)
	h.genericError(w)
}
