// backend/src/handlers/middleware.go
package handlers

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/username/trackfolio/backend/src/logger"
	"github.com/username/trackfolio/backend/src/security"
	"github.com/username/trackfolio/backend/src/utils"
)

type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	ownerIDContextKey   contextKey = "ownerID"
)

// GetOwnerIDFromContext returns the owner set by AuthMiddleware.
func GetOwnerIDFromContext(ctx context.Context) (int64, bool) {
	ownerID, ok := ctx.Value(ownerIDContextKey).(int64)
	return ownerID, ok
}

// ContextualLoggerMiddleware creates a logger carrying a requestID for each request.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the bearer token to an owner and adds it to the context and the logger.
func AuthMiddleware(authService *security.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxLogger := logger.FromContext(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ctxLogger.Debug("AuthMiddleware: Authorization header missing", "path", r.URL.Path)
				utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == "" {
				ctxLogger.Debug("AuthMiddleware: Token string empty", "path", r.URL.Path)
				utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
				return
			}

			ownerID, err := authService.ValidateToken(tokenString)
			if err != nil {
				ctxLogger.Warn("AuthMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
				utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			enrichedLogger := ctxLogger.With(slog.Int64("ownerID", ownerID))
			ctx := logger.ToContext(r.Context(), enrichedLogger)
			ctx = context.WithValue(ctx, ownerIDContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ProxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware shares one token bucket across all clients.
func RateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.FromContext(r.Context()).Warn("Rate limit exceeded", "path", r.URL.Path)
				utils.SendJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
				w.Header().Set("Access-Control-Expose-Headers", "ETag")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
