package mw

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const clientIDKey = "client_id"

var errBadSubject = errors.New("token subject is not a client id")

// ClientAuth validates an HS256 bearer token and stores its subject, the
// client id, in the request context. Tokens are issued elsewhere.
func ClientAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauthorized(c, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			unauthorized(c, "invalid token")
			return
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "invalid claims")
			return
		}
		clientID, err := subjectID(claims["sub"])
		if err != nil {
			unauthorized(c, "invalid token subject")
			return
		}

		c.Set(clientIDKey, clientID)
		c.Next()
	}
}

// ClientID returns the authenticated client id set by ClientAuth.
func ClientID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(clientIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// subjectID accepts the sub claim as a JSON number or a decimal string.
func subjectID(sub any) (int64, error) {
	var id int64
	switch v := sub.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, errBadSubject
		}
		id = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", errBadSubject, err)
		}
		id = n
	default:
		return 0, errBadSubject
	}
	if id <= 0 {
		return 0, errBadSubject
	}
	return id, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "UNAUTHORIZED"})
}
