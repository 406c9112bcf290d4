package auth

import "errors"

// ContextKey is used for context keys to avoid collisions
type ContextKey string

const (
	// ResultKey is the context key for auth result
	ResultKey ContextKey = "auth_result"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("missing credentials")
)

// AuthResult represents the result of authentication
type AuthResult struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
}
