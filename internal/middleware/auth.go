package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"ipg-server/internal/auth"
	"ipg-server/internal/shared/cookies"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

type contextKey string

const UserContextKey contextKey = "user"

func JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := slog.With(
			"middleware", "jwt",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		token, ok := cookies.AuthToken(r)
		if !ok {
			response.Error(w, r, logger, errors.Unauthorized("authentication required"))
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			response.Error(w, r, logger, errors.Unauthorized("invalid token"))
			return
		}

		logger.Debug("JWT authentication successful", "player_name", claims.Name)
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
	})
}

// OptionalJWT attaches the caller's claims when a valid cookie is present
// and passes anonymous requests through unchanged.
func OptionalJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := cookies.AuthToken(r); ok {
			if claims, err := auth.ValidateJWT(token); err == nil {
				r = r.WithContext(WithUser(r.Context(), claims))
			} else {
				slog.Debug("Ignoring invalid auth cookie", "middleware", "optional_jwt", "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// Helper to get user from context
func GetUserFromContext(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(UserContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}
