package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access token payload issued by the session provider.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identity returns the user id, falling back to the registered subject claim.
func (c *JWTClaims) Identity() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}
