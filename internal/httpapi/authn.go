package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"scorecard.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/auth/login",
	"/auth/refresh",
	"/health",
	"/metrics",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePrincipal pulls the authenticated caller or fails with 403.
func requirePrincipal(ctx context.Context, w http.ResponseWriter) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		writeError(w, http.StatusForbidden, "access denied")
	}
	return principal, ok
}

// requireAdmin gates admin-only routes.
func requireAdmin(ctx context.Context, w http.ResponseWriter) (auth.Principal, bool) {
	principal, ok := requirePrincipal(ctx, w)
	if !ok {
		return auth.Principal{}, false
	}
	if !principal.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
