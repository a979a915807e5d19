package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"microfin-go/utils"
)

type contextKey string

const UserContextKey contextKey = "user"

// JWTAuth accepts a bearer token issued by the identity provider and puts its
// claims on the request context.
func JWTAuth(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("missing authorization header", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			bearerToken := strings.Fields(authHeader)
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				logger.Debug("malformed authorization header", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := utils.ValidateToken(bearerToken[1])
			if err != nil {
				logger.Info("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth must run after JWTAuth.
func AdminAuth(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			if !claims.IsAdmin() {
				logger.Warn("admin endpoint denied",
					zap.String("subject", claims.Subject),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func GetUserFromContext(r *http.Request) *utils.Claims {
	if claims, ok := r.Context().Value(UserContextKey).(*utils.Claims); ok {
		return claims
	}
	return nil
}

// WithUser returns a copy of ctx carrying claims.
func WithUser(ctx context.Context, claims *utils.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
