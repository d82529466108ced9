package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/service"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// ContextClaimsKey is the gin context key storing JWT claims.
const ContextClaimsKey = "currentClaims"

// ContextActorKey is the gin context key storing the authenticated
// user with freshly loaded role grants.
const ContextActorKey = "currentActor"

// ActorLoader resolves the acting user with current role grants. The
// token only names roles as of login; authorization reads the ledger.
type ActorLoader interface {
	FindWithGrants(ctx context.Context, id string) (*models.User, error)
}

// JWT protects routes by requiring a valid access token. The actor is
// loaded from storage so revoked grants take effect immediately.
func JWT(authService *service.AuthService, users ActorLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromHeader(c, authService)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		actor, err := users.FindWithGrants(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer available"))
			c.Abort()
			return
		}
		if actor.Status != models.UserStatusActive {
			response.Error(c, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive"))
			c.Abort()
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// OptionalJWT attaches the actor when a valid token is present but
// never blocks. Public listing endpoints use it to widen visibility
// for signed-in readers.
func OptionalJWT(authService *service.AuthService, users ActorLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromHeader(c, authService)
		if err != nil {
			c.Next()
			return
		}

		actor, err := users.FindWithGrants(c.Request.Context(), claims.UserID)
		if err != nil || actor.Status != models.UserStatusActive {
			c.Next()
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

func claimsFromHeader(c *gin.Context, authService *service.AuthService) (*models.JWTClaims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authorization header required")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}

	return authService.ValidateToken(parts[1])
}
