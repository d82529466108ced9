package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/service"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// TagHandler exposes tag administration endpoints.
type TagHandler struct {
	service *service.TagService
}

// NewTagHandler creates a new tag handler.
func NewTagHandler(svc *service.TagService) *TagHandler {
	return &TagHandler{service: svc}
}

// List godoc
// @Summary List tags
// @Description List tags, optionally scoped to one context
// @Tags Tags
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param context query string false "Tag context (posts|labs|projects)"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /tags [get]
func (h *TagHandler) List(c *gin.Context) {
	var filter models.TagFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil {
		filter.PageSize = size
	}
	filter.Context = c.Query("context")
	filter.Search = c.Query("search")

	tags, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tags, pagination)
}

type mergeTagsRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	TargetID string `json:"target_id" binding:"required"`
}

// Merge godoc
// @Summary Merge tags
// @Description Repoint every association of the source tag onto the target and drop the source
// @Tags Tags
// @Accept json
// @Produce json
// @Param payload body mergeTagsRequest true "Merge payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /tags/merge [post]
func (h *TagHandler) Merge(c *gin.Context) {
	var req mergeTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.service.Merge(c.Request.Context(), actorFromContext(c), req.SourceID, req.TargetID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

type splitTagRequest struct {
	Names []string `json:"names" binding:"required,min=1"`
}

// Split godoc
// @Summary Split tag
// @Description Create new tags from the source tag, attach them to its owners and retire the source
// @Tags Tags
// @Accept json
// @Produce json
// @Param id path string true "Tag ID"
// @Param payload body splitTagRequest true "Split payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /tags/{id}/split [post]
func (h *TagHandler) Split(c *gin.Context) {
	var req splitTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	tags, err := h.service.Split(c.Request.Context(), actorFromContext(c), c.Param("id"), req.Names)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tags, nil)
}
