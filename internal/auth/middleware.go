package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

const realm = `Basic realm="clawpanel", charset="UTF-8"`

// Middleware provides authentication middleware for HTTP handlers
type Middleware struct {
	authService *AuthService
}

func NewMiddleware(s *AuthService) *Middleware {
	return &Middleware{authService: s}
}

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authService.Enabled() {
			c.Next()
			return
		}

		authResult, err := m.authenticate(c.Request)
		if err != nil || !authResult.Success {
			c.Header("WWW-Authenticate", realm)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}

		c.Set(string(ResultKey), authResult)
		c.Next()
	}
}

// HTTPAuth returns a standard HTTP middleware function for authentication
func (m *Middleware) HTTPAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authService.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authResult, err := m.authenticate(r)
		if err != nil || !authResult.Success {
			w.Header().Set("WWW-Authenticate", realm)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication_failed","message":"Authentication required"}`))
			return
		}

		ctx := context.WithValue(r.Context(), ResultKey, authResult)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticate(r *http.Request) (*AuthResult, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return &AuthResult{Success: false}, ErrMissingCredentials
	}
	return m.authService.Authenticate(r.Context(), username, password)
}
