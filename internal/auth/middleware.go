package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ViewerKey contextKey = "viewer"

// AuthMiddleware accepts a bearer header, or a token query parameter for
// websocket upgrades, and rejects holders without role.
func (s *Service) AuthMiddleware(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := tokenFromRequest(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization"})
				return
			}

			viewer, err := s.ValidateToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			if !viewer.Role.Allows(role) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}

			ctx := context.WithValue(r.Context(), ViewerKey, viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", false
		}
		return parts[1], true
	}
	token := r.URL.Query().Get("token")
	return token, token != ""
}

func ViewerFromContext(ctx context.Context) *Viewer {
	v, _ := ctx.Value(ViewerKey).(*Viewer)
	return v
}
