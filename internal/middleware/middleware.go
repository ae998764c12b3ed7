// Package middleware provides HTTP middleware for the citizen report server.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

type contextKey string

const actorKey contextKey = "actor"

// StructuredLogger returns a middleware that logs HTTP requests with zap
func StructuredLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			// RequireAuth runs deeper in the chain, so the actor is on the
			// holder it filled in rather than on r.
			if h, ok := r.Context().Value(actorKey).(*actorHolder); ok && h.actor != nil {
				fields = append(fields, zap.String("actor", h.actor.ID))
			}

			switch {
			case ww.statusCode >= http.StatusInternalServerError:
				logger.Error("HTTP Request", fields...)
			default:
				logger.Info("HTTP Request", fields...)
			}
		})
	}
}

// SecurityHeaders sets conservative response headers on every reply.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}

// Claims is the access token payload: the subject is the user id.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 access token for actor.
func SignToken(secret string, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates an access token and returns its actor.
func ParseToken(secret, tokenStr string) (models.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, err
	}
	if !token.Valid {
		return models.Actor{}, errors.New("invalid token")
	}

	switch claims.Role {
	case models.RoleCitizen, models.RolePolice, models.RoleAdmin:
	default:
		return models.Actor{}, errors.New("unknown role")
	}
	if claims.Subject == "" {
		return models.Actor{}, errors.New("missing subject")
	}
	return models.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// actorHolder lets outer middleware see the actor resolved further in.
type actorHolder struct {
	actor *models.Actor
}

// WithActorSlot prepares the request context to carry the authenticated
// actor. Mount it before StructuredLogger.
func WithActorSlot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), actorKey, &actorHolder{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	if h, ok := ctx.Value(actorKey).(*actorHolder); ok {
		h.actor = &actor
		return ctx
	}
	return context.WithValue(ctx, actorKey, &actorHolder{actor: &actor})
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	h, ok := ctx.Value(actorKey).(*actorHolder)
	if !ok || h.actor == nil {
		return models.Actor{}, false
	}
	return *h.actor, true
}

// RequireAuth validates JWT tokens for protected routes
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}

			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			actor, err := ParseToken(secret, tokenStr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole admits only actors holding one of roles. It must run after
// RequireAuth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization required")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient role")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
