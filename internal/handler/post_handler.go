package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/service"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// PostHandler exposes the post lifecycle endpoints.
type PostHandler struct {
	service *service.PostService
}

// NewPostHandler creates a new post handler.
func NewPostHandler(svc *service.PostService) *PostHandler {
	return &PostHandler{service: svc}
}

// Create godoc
// @Summary Create post
// @Description Create a new post with tags; a scheduled publish time in the past publishes immediately
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body service.CreatePostRequest true "Create post payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	var req service.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	post, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, post)
}

// Update godoc
// @Summary Update post
// @Description Rewrite a post; non-admin actors must be the author
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.UpdatePostRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{id} [put]
func (h *PostHandler) Update(c *gin.Context) {
	var req service.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	post, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, post, nil)
}

// Get godoc
// @Summary Get post
// @Description Get a post by ID for management
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{id} [get]
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.service.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, post, nil)
}

// List godoc
// @Summary List posts
// @Description List posts for management; non-admins see their own posts
// @Tags Posts
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param keyword query string false "Keyword search"
// @Param status query string false "Status filter"
// @Param category query string false "Category ID filter"
// @Param tag query string false "Tag slug filter"
// @Param with_trashed query bool false "Include soft-deleted posts (admin)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /posts [get]
func (h *PostHandler) List(c *gin.Context) {
	var filter models.PostFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.Keyword = c.Query("keyword")
	filter.CategoryID = c.Query("category")
	filter.Tag = c.Query("tag")
	if status := c.Query("status"); status != "" {
		if parsed, ok := models.ParsePostStatus(status); ok {
			filter.Status = &parsed
		}
	}
	if trashed := c.Query("with_trashed"); trashed != "" {
		if val, err := strconv.ParseBool(trashed); err == nil {
			filter.WithTrashed = val
		}
	}

	posts, pagination, err := h.service.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, posts, pagination)
}

// ListPublic godoc
// @Summary List public posts
// @Description List publicly visible posts; scheduled posts appear once their publish time passes
// @Tags Posts
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param category query string false "Category ID filter"
// @Success 200 {object} response.Envelope
// @Router /public/posts [get]
func (h *PostHandler) ListPublic(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.service.ListPublic(c.Request.Context(), c.Query("category"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Posts, result.Pagination)
}

// GetPublic godoc
// @Summary Get public post
// @Description Get a publicly visible post by slug; increments the view counter
// @Tags Posts
// @Produce json
// @Param slug path string true "Post slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/posts/{slug} [get]
func (h *PostHandler) GetPublic(c *gin.Context) {
	post, err := h.service.GetPublicBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, post, nil)
}

type bulkIDsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// BulkPublish godoc
// @Summary Bulk publish posts
// @Description Publish several posts at once; unset publish times are stamped now
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body bulkIDsRequest true "Post IDs"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /posts/bulk/publish [post]
func (h *PostHandler) BulkPublish(c *gin.Context) {
	h.bulk(c, h.service.BulkPublish)
}

// BulkUnpublish godoc
// @Summary Bulk unpublish posts
// @Description Hide several posts at once
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body bulkIDsRequest true "Post IDs"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /posts/bulk/unpublish [post]
func (h *PostHandler) BulkUnpublish(c *gin.Context) {
	h.bulk(c, h.service.BulkUnpublish)
}

// BulkDelete godoc
// @Summary Bulk delete posts
// @Description Soft delete several posts at once
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body bulkIDsRequest true "Post IDs"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /posts/bulk/delete [post]
func (h *PostHandler) BulkDelete(c *gin.Context) {
	h.bulk(c, h.service.BulkDelete)
}

func (h *PostHandler) bulk(c *gin.Context, op func(ctx context.Context, actor *models.User, ids []string) (int64, error)) {
	var req bulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "post ids required"))
		return
	}

	affected, err := op(c.Request.Context(), actorFromContext(c), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"affected": affected}, nil)
}

// Delete godoc
// @Summary Delete post
// @Description Soft delete a post; admins or the author
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Restore godoc
// @Summary Restore post
// @Description Clear the soft-delete marker; admin only
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /posts/{id}/restore [post]
func (h *PostHandler) Restore(c *gin.Context) {
	if err := h.service.Restore(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Categories godoc
// @Summary List post categories
// @Description List all post categories
// @Tags Posts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /posts/categories [get]
func (h *PostHandler) Categories(c *gin.Context) {
	categories, err := h.service.Categories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, categories, nil)
}
