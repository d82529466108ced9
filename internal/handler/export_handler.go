package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/internal/service"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
	"github.com/campusworks/dept-admin-api/pkg/response"
)

// ExportHandler streams CSV and PDF exports of the back-office ledgers.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Posts godoc
// @Summary Export posts
// @Description Download the post ledger as CSV or PDF. Admin only.
// @Tags Exports
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Post status filter"
// @Param category query string false "Category filter"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/posts [get]
func (h *ExportHandler) Posts(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var filter models.PostFilter
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParsePostStatus(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown post status"))
			return
		}
		filter.Status = &status
	}
	filter.CategoryID = c.Query("category")

	result, err := h.service.Posts(c.Request.Context(), actorFromContext(c), format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	writeExport(c, result)
}

// Users godoc
// @Summary Export users
// @Description Download managed accounts as CSV or PDF. Admin only.
// @Tags Exports
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/users [get]
func (h *ExportHandler) Users(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.Users(c.Request.Context(), actorFromContext(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	writeExport(c, result)
}

// Activity godoc
// @Summary Export activity
// @Description Download the audit trail as CSV or PDF. Admin only.
// @Tags Exports
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Param action query string false "Action filter"
// @Param user_id query string false "Acting user filter"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/activity [get]
func (h *ExportHandler) Activity(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.ActivityFilter{
		Action: c.Query("action"),
		UserID: c.Query("user_id"),
	}

	result, err := h.service.Activity(c.Request.Context(), actorFromContext(c), format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	writeExport(c, result)
}

func writeExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
