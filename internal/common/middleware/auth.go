package middleware

import (
	"net/http"
	"strings"

	"bell-backend/internal/common/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextUserID is the gin context key holding the authenticated user id
const ContextUserID = "user_id"

// TokenVerifier resolves a bearer token to a user id
type TokenVerifier interface {
	ParseUserID(token string) (uuid.UUID, error)
}

// RequireAuth rejects requests without a valid bearer token
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Error(c, http.StatusUnauthorized, "missing bearer token")
			c.Abort()
			return
		}

		id, err := verifier.ParseUserID(strings.TrimSpace(token))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, id)
		c.Next()
	}
}

// UserIDFromContext returns the id stored by RequireAuth
func UserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
