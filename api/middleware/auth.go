// Package middleware holds the gin middleware of the board API.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kilianp07/haulboard/core/model"
)

const callerKey = "caller"

// Claims is the JWT payload accepted by the API.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID with the given role.
func IssueToken(secret []byte, userID string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates tokenString and returns the caller it names.
func ParseToken(secret []byte, tokenString string) (model.Caller, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return model.Caller{}, err
	}
	switch claims.Role {
	case model.RoleAdmin, model.RolePlanner, model.RoleViewer:
	default:
		return model.Caller{}, errors.New("unknown role")
	}
	return model.Caller{UserID: claims.Subject, Role: claims.Role}, nil
}

// Auth resolves the bearer token into a model.Caller stored on the context.
// Requests without a valid token are rejected with 401.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Authorization token required",
			})
			return
		}
		caller, err := ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Invalid token",
			})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// bearer reads the token from the Authorization header, or from the
// access_token query parameter for EventSource clients that cannot set
// headers.
func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("access_token")
}

// CallerFrom returns the caller resolved by Auth. Without one it returns a
// viewer, which cannot mutate anything.
func CallerFrom(c *gin.Context) model.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(model.Caller); ok {
			return caller
		}
	}
	return model.Caller{Role: model.RoleViewer}
}
