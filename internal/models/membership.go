package models

import "time"

// MembershipStatus marks whether a role grant currently counts toward
// authorization.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
)

// Membership is a ledger entry linking a user to a role. Entries are
// toggled between active and inactive, never physically deleted.
type Membership struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"user_id"`
	RoleID        string           `db:"role_id" json:"role_id"`
	Status        MembershipStatus `db:"status" json:"status"`
	AssignedAt    time.Time        `db:"assigned_at" json:"assigned_at"`
	DeactivatedAt *time.Time       `db:"deactivated_at" json:"deactivated_at,omitempty"`
	PersonID      *string          `db:"person_id" json:"person_id,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the grant counts toward authorization.
func (m *Membership) IsActive() bool {
	return m.Status == MembershipActive
}

// RoleGrant is a membership joined with its role definition, the shape
// authorization decisions are made against.
type RoleGrant struct {
	MembershipID string           `db:"membership_id" json:"membership_id"`
	RoleName     string           `db:"role_name" json:"role_name"`
	Priority     int              `db:"priority" json:"priority"`
	Status       MembershipStatus `db:"status" json:"status"`
}
