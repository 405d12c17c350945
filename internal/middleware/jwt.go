package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/logger"
	"github.com/noah-isme/studycal-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(auth tokenValidator) gin.HandlerFunc {
	return authenticate(auth, false)
}

// JWTWithQuery also accepts the token as ?access_token= for clients that cannot set headers, such as browser websockets.
func JWTWithQuery(auth tokenValidator) gin.HandlerFunc {
	return authenticate(auth, true)
}

func authenticate(auth tokenValidator, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c, allowQuery)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(logger.UserIDKey, claims.Identity())
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if allowQuery {
			if token := c.Query("access_token"); token != "" {
				return token, nil
			}
		}
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
