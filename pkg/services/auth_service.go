package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/connectrunner/connectrunner/pkg/config"
)

// ErrInvalidCredentials is returned when the username or password is wrong
var ErrInvalidCredentials = errors.New("invalid username or password")

// AuthService authenticates the single dashboard operator and issues tokens
// for subsequent API calls.
type AuthService struct {
	username     string
	passwordHash string
	jwtService   *JWTService
}

// NewAuthService creates an authentication service from the auth
// configuration
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		jwtService:   NewJWTService(cfg.JWTSecret, cfg.TokenExpiration),
	}
}

// Login verifies the operator credentials and returns a signed token
func (s *AuthService) Login(username, password string) (string, error) {
	if s.passwordHash == "" {
		return "", errors.New("operator password is not configured")
	}
	if username != s.username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.jwtService.GenerateToken(username)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a bearer token and returns the operator username
func (s *AuthService) ValidateToken(token string) (string, error) {
	return s.jwtService.ValidateToken(token)
}

// HashPassword produces a bcrypt hash suitable for the config file
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
