package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const uidKey = "uid"

// TokenParser validates a bearer token and returns the uid it was issued for.
type TokenParser interface {
	Parse(token string) (string, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// token subject as the caller's uid.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		uid, err := tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(uidKey, uid)
		c.Next()
	}
}

// UID returns the authenticated uid, if any.
func UID(c *gin.Context) (string, bool) {
	uid := c.GetString(uidKey)
	return uid, uid != ""
}
