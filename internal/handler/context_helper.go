package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/middleware"
	"github.com/noah-isme/studycal-api/internal/models"
	appErrors "github.com/noah-isme/studycal-api/pkg/errors"
	"github.com/noah-isme/studycal-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentUser writes a 401 and returns false when the request carries no identity.
func currentUser(c *gin.Context) (string, bool) {
	userID := claimsFromContext(c).Identity()
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

const dateLayout = "2006-01-02"

// parseRange reads ?start=&end= as RFC 3339 timestamps or plain dates. A plain end date covers that whole day.
func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	start, _, err := parseInstant(c.Query("start"), "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, dateOnly, err := parseInstant(c.Query("end"), "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Second)
	}
	return start, end, nil
}

func parseInstant(raw, field string) (time.Time, bool, error) {
	if raw == "" {
		return time.Time{}, false, appErrors.Clone(appErrors.ErrValidation, field+" is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, appErrors.Clone(appErrors.ErrValidation, "invalid "+field+", expected RFC 3339 or YYYY-MM-DD")
}

func pickQuery(c *gin.Context, preferred string, fallback string) string {
	if value := c.Query(preferred); value != "" {
		return value
	}
	return c.Query(fallback)
}
