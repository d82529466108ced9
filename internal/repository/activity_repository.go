package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/dept-admin-api/internal/models"
)

// ActivityRepository persists the audit trail. Records are append-only.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new instance of ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record appends an activity entry.
func (r *ActivityRepository) Record(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_log (id, user_id, action, subject_type, subject_id, description, properties, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :subject_type, :subject_id, :description, :properties, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// List returns activity entries matching the filter, newest first.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	baseQuery := `FROM activity_log a WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("a.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("a.action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.SubjectType != "" {
		conditions = append(conditions, fmt.Sprintf("a.subject_type = $%d", len(args)+1))
		args = append(args, filter.SubjectType)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT a.id, a.user_id, a.action, a.subject_type, a.subject_id, a.description, a.properties, a.ip_address, a.user_agent, a.created_at %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	return activities, total, nil
}

// CountSince returns the number of entries recorded at or after the
// given instant.
func (r *ActivityRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_log WHERE created_at >= $1`, since); err != nil {
		return 0, fmt.Errorf("count activities since: %w", err)
	}
	return total, nil
}
