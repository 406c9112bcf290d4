// Package auth protects the panel API with HTTP basic auth against a bcrypt hash.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/clawpanel/internal/config"
)

// AuthService checks credentials for the single configured panel user.
type AuthService struct {
	enabled      bool
	username     string
	passwordHash []byte
}

func NewAuthService(cfg config.AuthConfig) (*AuthService, error) {
	if !cfg.Enabled {
		return &AuthService{}, nil
	}
	if cfg.Username == "" || cfg.PasswordHash == "" {
		return nil, errors.New("auth enabled without username or password hash")
	}
	if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
		return nil, fmt.Errorf("password_hash is not a bcrypt hash: %w", err)
	}
	return &AuthService{enabled: true, username: cfg.Username, passwordHash: []byte(cfg.PasswordHash)}, nil
}

func (s *AuthService) Enabled() bool { return s != nil && s.enabled }

// Authenticate performs username/password authentication
func (s *AuthService) Authenticate(_ context.Context, username, password string) (*AuthResult, error) {
	if username == "" || password == "" {
		return &AuthResult{Success: false}, ErrMissingCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// always run bcrypt so an unknown user costs the same as a wrong password
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return &AuthResult{Success: false}, ErrInvalidCredentials
	}
	return &AuthResult{Success: true, Username: username}, nil
}

// HashPassword returns a bcrypt hash suitable for server.auth.password_hash.
// A cost of 0 selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
