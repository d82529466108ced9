package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/middleware"
	"github.com/campusworks/dept-admin-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextClaimsKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext returns the authenticated user with loaded grants,
// or nil on public routes without a token.
func actorFromContext(c *gin.Context) *models.User {
	value, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return nil
	}
	actor, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return actor
}
