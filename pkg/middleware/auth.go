// Package middleware provides HTTP middleware for connectrunner.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Key type for context values
type contextKey string

// Context keys
const (
	UsernameKey contextKey = "username"
)

// TokenValidator validates a bearer token and returns the operator username
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware provides authentication middleware for HTTP handlers
type AuthMiddleware struct {
	validator   TokenValidator
	rateLimiter *RateLimiter
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator:   validator,
		rateLimiter: NewRateLimiter(100, time.Minute), // 100 attempts per minute
	}
}

// Authenticate is middleware that authenticates requests with a bearer token
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		clientIP := r.RemoteAddr
		if m.rateLimiter.IsLimited(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unsupported authentication method", http.StatusUnauthorized)
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := m.validator.ValidateToken(token)
		if err != nil {
			m.rateLimiter.Record(clientIP)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUsername retrieves the operator username from the request context
func GetUsername(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(UsernameKey).(string)
	return username, ok
}

// RateLimiter caps authentication attempts with a token bucket per client
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*rate.Limiter
	limit      rate.Limit
	burst      int
	cleanupInt time.Duration
	lastClean  time.Time
}

// NewRateLimiter creates a rate limiter allowing limit attempts per window
// for each client, refilling continuously.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:    make(map[string]*rate.Limiter),
		limit:      rate.Every(window / time.Duration(limit)),
		burst:      limit,
		cleanupInt: time.Minute * 5,
		lastClean:  time.Now(),
	}
}

func (r *RateLimiter) limiter(clientID string) *rate.Limiter {
	if l, ok := r.clients[clientID]; ok {
		return l
	}
	l := rate.NewLimiter(r.limit, r.burst)
	r.clients[clientID] = l
	return l
}

// IsLimited checks if a client has exhausted its attempt budget
func (r *RateLimiter) IsLimited(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Clean up refilled buckets periodically
	if time.Since(r.lastClean) > r.cleanupInt {
		r.cleanup()
		r.lastClean = time.Now()
	}

	return r.limiter(clientID).Tokens() < 1
}

// Record consumes one attempt from the client's budget
func (r *RateLimiter) Record(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limiter(clientID).Allow()
}

// cleanup drops clients whose buckets have fully refilled
func (r *RateLimiter) cleanup() {
	for clientID, l := range r.clients {
		if l.Tokens() >= float64(r.burst) {
			delete(r.clients, clientID)
		}
	}
}
