package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/service"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// MembershipHandler exposes the role grant ledger.
type MembershipHandler struct {
	service *service.MembershipService
}

// NewMembershipHandler creates a new membership handler.
func NewMembershipHandler(svc *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: svc}
}

type grantRequest struct {
	Role     string  `json:"role" binding:"required"`
	PersonID *string `json:"person_id"`
}

// Grant godoc
// @Summary Grant role
// @Description Grant a role membership to a user
// @Tags Memberships
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body grantRequest true "Role grant payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id}/roles [post]
func (h *MembershipHandler) Grant(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	membership, err := h.service.Grant(c.Request.Context(), actor.ID, c.Param("id"), req.Role, req.PersonID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, membership)
}

// List godoc
// @Summary List role grants
// @Description List all memberships of a user, inactive included
// @Tags Memberships
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/{id}/roles [get]
func (h *MembershipHandler) List(c *gin.Context) {
	memberships, err := h.service.ListForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, memberships, nil)
}

// Activate godoc
// @Summary Activate role grant
// @Description Re-activate a deactivated membership
// @Tags Memberships
// @Produce json
// @Param membershipId path string true "Membership ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /memberships/{membershipId}/activate [post]
func (h *MembershipHandler) Activate(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Activate(c.Request.Context(), actor.ID, c.Param("membershipId")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Deactivate godoc
// @Summary Deactivate role grant
// @Description Deactivate an active membership
// @Tags Memberships
// @Produce json
// @Param membershipId path string true "Membership ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /memberships/{membershipId}/deactivate [post]
func (h *MembershipHandler) Deactivate(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), actor.ID, c.Param("membershipId")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
