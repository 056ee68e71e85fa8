// internal/api/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tradebybarter-ledger/internal/api/types"
	"tradebybarter-ledger/internal/domain"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

// WithUser returns a context carrying the authenticated caller.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserIDFromContext returns the authenticated caller id, or "" outside Authenticate.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// RoleFromContext returns the caller role.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// Authenticate validates an HMAC-signed bearer token. The caller id comes from
// the "sub" claim, falling back to "user_id".
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(tokenStr) == "" {
				types.WriteError(w, http.StatusUnauthorized, "Authentication required", "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(strings.TrimSpace(tokenStr), claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				types.WriteError(w, http.StatusUnauthorized, "Authentication required", "invalid or expired token")
				return
			}

			userID, err := subject(claims)
			if err != nil {
				types.WriteError(w, http.StatusUnauthorized, "Authentication required", err.Error())
				return
			}
			role, _ := claims["role"].(string)
			if role == "" {
				role = domain.RoleUser
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, strings.ToUpper(role))))
		})
	}
}

func subject(claims jwt.MapClaims) (string, error) {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	return "", errors.New("token has no subject")
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, RoleFromContext(r.Context())) {
				types.WriteError(w, http.StatusForbidden, "Access denied", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
