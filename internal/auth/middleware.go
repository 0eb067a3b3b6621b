package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"energyiq/internal/observability/metrics"
)

// Rejection reasons, used as the metric label and log field.
const (
	ReasonMissingToken     = "missing_token"
	ReasonInvalidToken     = "invalid_token"
	ReasonInsufficientRole = "insufficient_role"
)

// Middleware checks bearer tokens and role requirements in front of the API.
type Middleware struct {
	Secret []byte
	Policy Policy

	logger *zap.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithLogger logs every rejected request.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{Secret: secret, Policy: policy, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap applies token validation and the role policy to next. Authorized
// requests carry the caller identity in their context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.Secret)
		if err != nil {
			reason := ReasonInvalidToken
			if errors.Is(err, ErrEmptyToken) {
				reason = ReasonMissingToken
			}
			m.reject(w, r, http.StatusUnauthorized, reason, required,
				zap.Error(err))
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !role.Satisfies(required) {
			m.reject(w, r, http.StatusForbidden, ReasonInsufficientRole, required,
				zap.String("subject", claims.Subject), zap.String("role", string(role)))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, claims.Subject)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, status int, reason string, required Role, fields ...zap.Field) {
	metrics.IncAuthRejection(reason)
	m.logger.Warn("api request rejected", append([]zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("reason", reason),
		zap.String("required_role", string(required)),
	}, fields...)...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Message: strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
