package models

import "time"

// Activity action constants. Every authorization-gated mutation emits
// one of these records.
const (
	ActivityLogin               = "auth.login"
	ActivityLogout              = "auth.logout"
	ActivityPasswordChange      = "auth.password_changed"
	ActivityUserCreated         = "user.created"
	ActivityUserUpdated         = "user.updated"
	ActivityUserDeleted         = "user.deleted"
	ActivityRoleGranted         = "membership.granted"
	ActivityRoleActivated       = "membership.activated"
	ActivityRoleDeactivated     = "membership.deactivated"
	ActivityPostCreated         = "post.created"
	ActivityPostUpdated         = "post.updated"
	ActivityPostDeleted         = "post.deleted"
	ActivityPostRestored        = "post.restored"
	ActivityPostBulkPublished   = "post.bulk_published"
	ActivityPostBulkUnpublished = "post.bulk_unpublished"
	ActivityLabCreated          = "lab.created"
	ActivityLabUpdated          = "lab.updated"
	ActivityLabDeleted          = "lab.deleted"
	ActivityProjectCreated      = "project.created"
	ActivityProjectUpdated      = "project.updated"
	ActivityProjectDeleted      = "project.deleted"
	ActivityTagsMerged          = "tag.merged"
	ActivityTagSplit            = "tag.split"
	ActivityExportDownloaded    = "export.downloaded"
)

// Activity is an immutable audit record: who did what to which subject.
// Properties carries free-form JSON detail.
type Activity struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	SubjectType string    `db:"subject_type" json:"subject_type"`
	SubjectID   *string   `db:"subject_id" json:"subject_id,omitempty"`
	Description string    `db:"description" json:"description"`
	Properties  []byte    `db:"properties" json:"properties,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ActivityFilter captures filtering criteria for the activity feed.
type ActivityFilter struct {
	UserID      string
	Action      string
	SubjectType string
	Page        int
	PageSize    int
}
