package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// contextKeyClaims is where RequireBearer stores validated claims for
// downstream handlers.
const contextKeyClaims = "chidori_jwt_claims"

// RequireBearer validates an `Authorization: Bearer <token>` header
// against signingKey, rejecting the request with 401 if missing,
// malformed, or invalid.
//
// Grounded on
// go/internal/infrastructure/api/rest/middleware_auth.go's
// AuthMiddleware.RequireAuth: extract the bearer token, reject early
// on absence, store validated identity in gin's request context for
// downstream handlers. Generalized from that file's service-key vs.
// JWT branching to JWT-only, since this module has no separate
// service-key concept.
func RequireBearer(signingKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			respondError(c, 401, "missing Authorization header")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			respondError(c, 401, "Authorization header must use the Bearer scheme")
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(signingKey), nil
		})
		if err != nil || !parsed.Valid {
			respondError(c, 401, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}
