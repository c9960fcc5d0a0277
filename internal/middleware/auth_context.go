package middleware

import (
	"context"
	"net/http"
	"strings"

	"petsched/internal/platform/httpjson"
	"petsched/internal/ports/auth"
)

type ctxKey string

const (
	claimsKey    ctxKey = "claims"
	authErrorKey ctxKey = "auth_error"
)

// AuthContext:
// - Si viene Bearer token => Verify() y setea claims.
// - Si el token es inválido/expirado se marca el request; RequireAuth responde 403.
// - Si no hay token el request sigue igual; las rutas públicas no exigen auth.
func AuthContext(verifier auth.AuthVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				ctx := context.WithValue(r.Context(), authErrorKey, err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth corta con 401 si no vino token y 403 si vino pero no es válido.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetClaims(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if _, invalid := r.Context().Value(authErrorKey).(error); invalid {
			httpjson.Error(w, http.StatusForbidden, httpjson.CategoryForbidden,
				"Invalid token", "Token is not valid")
			return
		}
		httpjson.Error(w, http.StatusUnauthorized, httpjson.CategoryUnauthenticated,
			"Access denied", "No token provided")
	})
}

// RequireRole va después de RequireAuth: 401 sin claims, 403 si el rol no está permitido.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				httpjson.Error(w, http.StatusUnauthorized, httpjson.CategoryUnauthenticated,
					"Access denied", "Authentication required")
				return
			}
			if !claims.HasRole(roles...) {
				httpjson.Error(w, http.StatusForbidden, httpjson.CategoryForbidden,
					"Insufficient permissions", "Role "+claims.Role+" cannot access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	v := ctx.Value(claimsKey)
	if v == nil {
		return auth.Claims{}, false
	}
	c, ok := v.(auth.Claims)
	return c, ok
}

// WithClaims se usa en tests de handlers que no pasan por AuthContext.
func WithClaims(ctx context.Context, c auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func bearerToken(authHeader string) string {
	if strings.TrimSpace(authHeader) == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
