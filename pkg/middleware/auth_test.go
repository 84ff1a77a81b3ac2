package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	username string
	err      error
}

func (s stubValidator) ValidateToken(token string) (string, error) {
	return s.username, s.err
}

func authedHandler(t *testing.T, m *AuthMiddleware, wantUser string) http.Handler {
	t.Helper()
	return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := GetUsername(r)
		assert.True(t, ok)
		assert.Equal(t, wantUser, username)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthenticatePassesValidToken(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{username: "operator"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	authedHandler(t, m, "operator").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{username: "operator"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()

	m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateRejectsNonBearerScheme(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{username: "operator"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Basic b3A6aHVudGVyMg==")
	rec := httptest.NewRecorder()

	m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateRateLimitsRepeatedFailures(t *testing.T) {
	m := NewAuthMiddleware(stubValidator{err: errors.New("bad token")})

	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	// httptest requests share a RemoteAddr, so they count against one
	// client's budget.
	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterBlocksOnlyExhaustedClients(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.False(t, rl.IsLimited("1.2.3.4"))
		rl.Record("1.2.3.4")
	}

	assert.True(t, rl.IsLimited("1.2.3.4"))
	assert.False(t, rl.IsLimited("5.6.7.8"), "budgets are per client")
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)

	rl.Record("1.2.3.4")
	rl.Record("1.2.3.4")
	require.True(t, rl.IsLimited("1.2.3.4"))

	// One token refills every half window.
	time.Sleep(60 * time.Millisecond)
	assert.False(t, rl.IsLimited("1.2.3.4"))
}
