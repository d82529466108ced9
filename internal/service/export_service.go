package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/pkg/export"
	appErrors "github.com/campusworks/dept-admin-api/pkg/errors"
)

// ExportFormat names a supported rendering.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportPostLister interface {
	List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error)
}

type exportUserLister interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult carries a rendered download.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders admin downloads of the content and audit
// ledgers.
type ExportService struct {
	posts    exportPostLister
	users    exportUserLister
	activity activityStore
	authz    *AuthzService
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(posts exportPostLister, users exportUserLister, activity activityStore, authz *AuthzService, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		posts:    posts,
		users:    users,
		activity: activity,
		authz:    authz,
		csv:      csv,
		pdf:      pdf,
		logger:   logger,
		now:      time.Now,
	}
}

// Posts renders the post ledger matching the filter. Admin only.
func (s *ExportService) Posts(ctx context.Context, actor *models.User, format ExportFormat, filter models.PostFilter) (*ExportResult, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return nil, err
	}

	filter.Page = 1
	filter.PageSize = exportPageLimit
	rows, _, err := s.posts.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load posts for export")
	}

	headers := []string{"ID", "Title", "Slug", "Status", "Visibility", "Pinned", "Views", "Published At", "Created At"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, post := range rows {
		dataRows = append(dataRows, map[string]string{
			"ID":           post.ID,
			"Title":        post.Title,
			"Slug":         post.Slug,
			"Status":       post.Status.String(),
			"Visibility":   post.Visibility.String(),
			"Pinned":       strconv.FormatBool(post.Pinned),
			"Views":        strconv.FormatInt(post.Views, 10),
			"Published At": formatExportTime(post.PublishedAt),
			"Created At":   post.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return s.render(format, "posts", "Posts Export", export.Dataset{Headers: headers, Rows: dataRows})
}

// Users renders the account list. Admin only; the listing is scoped the
// same way the admin user view is.
func (s *ExportService) Users(ctx context.Context, actor *models.User, format ExportFormat) (*ExportResult, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return nil, err
	}

	filter := models.UserFilter{Scope: models.ManagedScopeNonAdmins, Page: 1, PageSize: exportPageLimit}
	rows, _, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load users for export")
	}

	headers := []string{"ID", "Email", "Name", "Status", "Last Login", "Created At"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, user := range rows {
		dataRows = append(dataRows, map[string]string{
			"ID":         user.ID,
			"Email":      user.Email,
			"Name":       user.Name,
			"Status":     user.Status.String(),
			"Last Login": formatExportTime(user.LastLogin),
			"Created At": user.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return s.render(format, "users", "Users Export", export.Dataset{Headers: headers, Rows: dataRows})
}

// Activity renders the audit trail matching the filter. Admin only.
func (s *ExportService) Activity(ctx context.Context, actor *models.User, format ExportFormat, filter models.ActivityFilter) (*ExportResult, error) {
	if err := s.authz.RequireAdmin(actor); err != nil {
		return nil, err
	}

	filter.Page = 1
	filter.PageSize = exportPageLimit
	rows, _, err := s.activity.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity for export")
	}

	headers := []string{"ID", "User ID", "Action", "Subject", "Description", "IP", "Created At"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, entry := range rows {
		subject := entry.SubjectType
		if entry.SubjectID != nil {
			subject = fmt.Sprintf("%s/%s", entry.SubjectType, *entry.SubjectID)
		}
		dataRows = append(dataRows, map[string]string{
			"ID":          entry.ID,
			"User ID":     derefString(entry.UserID),
			"Action":      entry.Action,
			"Subject":     subject,
			"Description": entry.Description,
			"IP":          entry.IPAddress,
			"Created At":  entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return s.render(format, "activity", "Activity Export", export.Dataset{Headers: headers, Rows: dataRows})
}

// exportPageLimit caps rendered rows per download.
const exportPageLimit = 10000

func (s *ExportService) render(format ExportFormat, kind, title string, dataset export.Dataset) (*ExportResult, error) {
	timestamp := s.now().UTC().Format("20060102_150405")
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("%s_%s.csv", kind, timestamp),
			ContentType: "text/csv",
			Data:        payload,
		}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("%s_%s.pdf", kind, timestamp),
			ContentType: "application/pdf",
			Data:        payload,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// ParseExportFormat normalizes a query value into a supported format.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return ExportFormatCSV, nil
	case "pdf":
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
