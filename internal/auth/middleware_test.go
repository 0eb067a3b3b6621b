package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func wrapOK(mw *Middleware) http.Handler {
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler := wrapOK(NewMiddleware([]byte("test-secret"), NewDefaultPolicy(nil, nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/energy/stats", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthMiddleware_ViewerCanRead(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleViewer)
	handler := wrapOK(NewMiddleware(secret, NewDefaultPolicy(nil, nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/insights", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthMiddleware_ViewerForbiddenJobRun(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleViewer)
	handler := wrapOK(NewMiddleware(secret, NewDefaultPolicy(nil, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/aggregator/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAuthMiddleware_AdminRunsJob(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, RoleAdmin)
	handler := wrapOK(NewMiddleware(secret, NewDefaultPolicy(nil, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/insights/run", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler := wrapOK(NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)))

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestParseJWT_WrongSecret(t *testing.T) {
	token := mustToken(t, []byte("secret-a"), RoleAdmin)
	_, err := ParseJWT(token, []byte("secret-b"))
	require.Error(t, err)
}

func TestIssueJWT_RejectsUnknownRole(t *testing.T) {
	_, err := IssueJWT([]byte("s"), "user-1", Role("root"), time.Hour)
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestAuthMiddleware_RejectionsAreLoggedWithReason(t *testing.T) {
	secret := []byte("test-secret")
	core, logs := observer.New(zapcore.WarnLevel)
	handler := wrapOK(NewMiddleware(secret, NewDefaultPolicy(nil, nil), WithLogger(zap.New(core))))

	cases := []struct {
		name   string
		token  string
		path   string
		status int
		reason string
	}{
		{name: "missing", path: "/api/energy/stats", status: http.StatusUnauthorized, reason: ReasonMissingToken},
		{name: "bad signature", token: mustToken(t, []byte("other"), RoleAdmin), path: "/api/energy/stats", status: http.StatusUnauthorized, reason: ReasonInvalidToken},
		{name: "viewer exports report", token: mustToken(t, secret, RoleViewer), path: "/api/reports/export", status: http.StatusForbidden, reason: ReasonInsufficientRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs.TakeAll()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			require.Equal(t, tc.status, resp.Code)
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
			var body struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Message)

			entries := logs.TakeAll()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, tc.reason, fields["reason"])
			assert.Equal(t, tc.path, fields["path"])
			if tc.reason == ReasonInsufficientRole {
				assert.Equal(t, "user-1", fields["subject"])
				assert.Equal(t, string(RoleViewer), fields["role"])
				assert.Equal(t, string(RoleOperator), fields["required_role"])
			}
		})
	}
}

func TestAuthMiddleware_AllowedRequestIsNotLogged(t *testing.T) {
	secret := []byte("test-secret")
	core, logs := observer.New(zapcore.DebugLevel)
	handler := wrapOK(NewMiddleware(secret, NewDefaultPolicy(nil, nil), WithLogger(zap.New(core))))

	req := httptest.NewRequest(http.MethodGet, "/api/reports/export", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, RoleOperator))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Zero(t, logs.Len())
}

func TestRole_NormalizeAndSatisfies(t *testing.T) {
	role, ok := NormalizeRole(" Operator ")
	require.True(t, ok)
	assert.Equal(t, RoleOperator, role)

	_, ok = NormalizeRole("root")
	assert.False(t, ok)

	assert.True(t, RoleAdmin.Satisfies(RoleOperator))
	assert.True(t, RoleOperator.Satisfies(RoleOperator))
	assert.False(t, RoleViewer.Satisfies(RoleOperator))
	assert.False(t, Role("").Satisfies(Role("")))
	assert.False(t, Role("root").Satisfies(RoleViewer))
}

func mustToken(t *testing.T, secret []byte, role Role) string {
	t.Helper()
	token, err := IssueJWT(secret, "user-1", role, time.Hour)
	require.NoError(t, err)
	return token
}
