package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/service"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// RequireRole gates a route on the actor holding the named role or a
// more senior one. Seniority comes from the role ledger, so a role
// name the ledger does not know denies everyone.
func RequireRole(authz *service.AuthzService, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if actor == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		ok, err := authz.HasRoleOrHigher(c.Request.Context(), actor, role)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin is shorthand for the admin gate.
func RequireAdmin(authz *service.AuthzService) gin.HandlerFunc {
	return RequireRole(authz, models.RoleNameAdmin)
}

func actorFrom(c *gin.Context) *models.User {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return nil
	}
	actor, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return actor
}
