package middleware

import (
	"net/http"
	"strings"

	"github.com/technosupport/ts-license/internal/auth"
	"github.com/technosupport/ts-license/internal/tokens"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*tokens.Claims, error)
}

type JWTAuth struct {
	tokens    TokenValidator
	blacklist auth.TokenBlacklist
}

func NewJWTAuth(t TokenValidator, b auth.TokenBlacklist) *JWTAuth {
	return &JWTAuth{tokens: t, blacklist: b}
}

// Middleware verifies the admin bearer token and injects AdminContext.
// Every admin-gated route goes through here; missing, malformed, expired
// or blacklisted tokens all answer 401 without detail.
func (m *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if m.blacklist != nil {
			blacklisted, err := m.blacklist.IsBlacklisted(r.Context(), claims.ID)
			if err != nil {
				// Fail closed: redis down means no admin access.
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if blacklisted {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		ac := &AdminContext{
			Username: claims.Username,
			TokenID:  claims.ID,
		}
		next.ServeHTTP(w, r.WithContext(WithAdminContext(r.Context(), ac)))
	})
}
