package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/middleware"
)

// actorID returns the authenticated user id, or "system" for unauthenticated
// calls made from trusted tooling.
func actorID(c *gin.Context) string {
	claims, ok := middleware.CurrentClaims(c)
	if !ok || claims.UserID == "" {
		return "system"
	}
	return claims.UserID
}
