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

// LabHandler exposes research lab endpoints.
type LabHandler struct {
	service *service.LabService
}

// NewLabHandler creates a new lab handler.
func NewLabHandler(svc *service.LabService) *LabHandler {
	return &LabHandler{service: svc}
}

// List godoc
// @Summary List labs
// @Description List research labs with pagination
// @Tags Labs
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param keyword query string false "Keyword search"
// @Param owner query string false "Principal investigator filter"
// @Success 200 {object} response.Envelope
// @Router /labs [get]
func (h *LabHandler) List(c *gin.Context) {
	var filter models.LabFilter
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.Keyword = c.Query("keyword")
	filter.OwnerID = c.Query("owner")

	labs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, labs, pagination)
}

// Get godoc
// @Summary Get lab
// @Description Get lab detail with tags
// @Tags Labs
// @Produce json
// @Param id path string true "Lab ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /labs/{id} [get]
func (h *LabHandler) Get(c *gin.Context) {
	lab, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, lab, nil)
}

// Create godoc
// @Summary Create lab
// @Description Create a lab; a non-admin creator becomes the principal investigator
// @Tags Labs
// @Accept json
// @Produce json
// @Param payload body service.CreateLabRequest true "Create lab payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /labs [post]
func (h *LabHandler) Create(c *gin.Context) {
	var req service.CreateLabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	lab, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, lab)
}

// Update godoc
// @Summary Update lab
// @Description Update a lab; admins or the principal investigator
// @Tags Labs
// @Accept json
// @Produce json
// @Param id path string true "Lab ID"
// @Param payload body service.UpdateLabRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /labs/{id} [put]
func (h *LabHandler) Update(c *gin.Context) {
	var req service.UpdateLabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	lab, err := h.service.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, lab, nil)
}

// Delete godoc
// @Summary Delete lab
// @Description Soft delete a lab; admins or the principal investigator
// @Tags Labs
// @Produce json
// @Param id path string true "Lab ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /labs/{id} [delete]
func (h *LabHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
