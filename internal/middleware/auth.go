package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the token payload the identity provider issues. UserID is
// the application user id the chat identity derives from.
type SessionClaims struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"name"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid token")

// ParseToken validates a bearer token and returns its claims. Also used by
// the websocket handlers, which accept the token as a query parameter.
func ParseToken(secret, token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid || claims.UserID == 0 {
		return nil, errInvalidToken
	}
	return claims, nil
}

// AuthMiddleware validates the Authorization header. Without a valid token
// there is no active identity and no operation proceeds.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("displayName", claims.DisplayName)
		c.Next()
	}
}
