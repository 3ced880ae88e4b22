package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const (
	SessionHeader = "X-Session-ID"
	RoleAdmin     = "admin"
)

var (
	ErrUnauthorized = errors.New("missing or invalid credentials")
	ErrForbidden    = errors.New("administrator role required")
)

type contextKey string

const (
	customerIDKey contextKey = "customer_id"
	roleKey       contextKey = "role"
	sessionIDKey  contextKey = "session_id"
)

// Claims are the access token claims. Subject carries the customer id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// Authenticate reads an optional bearer token and an optional guest session id.
// A present but invalid token is rejected.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if header := r.Header.Get("Authorization"); header != "" {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
				return
			}
			claims, err := a.parse(strings.TrimSpace(raw))
			if err != nil {
				respondError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
				return
			}
			ctx = context.WithValue(ctx, customerIDKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
		}

		if session := strings.TrimSpace(r.Header.Get(SessionHeader)); session != "" {
			ctx = context.WithValue(ctx, sessionIDKey, session)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if customerIDFromContext(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if customerIDFromContext(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
			return
		}
		if role, _ := r.Context().Value(roleKey).(string); role != RoleAdmin {
			respondError(w, http.StatusForbidden, ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func customerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(customerIDKey).(string)
	return id
}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// cartOwner is the customer's cart when logged in, else the guest session's.
func cartOwner(ctx context.Context) (string, error) {
	if id := customerIDFromContext(ctx); id != "" {
		return domain.CustomerOwner(id), nil
	}
	if session := sessionIDFromContext(ctx); session != "" {
		return domain.GuestOwner(session), nil
	}
	return "", ErrUnauthorized
}

func requestLogger(r *http.Request, base *zap.Logger) *zap.Logger {
	l := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
	return logger.WithTrace(r.Context(), l)
}

// RequestLogger logs one line per request with its status and latency.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				requestLogger(r, base).Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
