package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/service"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// ActivityHandler exposes the audit trail.
type ActivityHandler struct {
	service *service.ActivityService
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(svc *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// List godoc
// @Summary List activity entries
// @Description Paginated audit trail, newest first. Admin only.
// @Tags Activity
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param user_id query string false "Filter by acting user"
// @Param action query string false "Filter by action"
// @Param subject_type query string false "Filter by subject type"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var filter models.ActivityFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil {
		filter.PageSize = size
	}
	filter.UserID = c.Query("user_id")
	filter.Action = c.Query("action")
	filter.SubjectType = c.Query("subject_type")

	entries, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, pagination)
}
