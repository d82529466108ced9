package models

import "time"

// Well-known role names. Roles are reference data seeded once; priorities
// come from the roles table, not from these constants.
const (
	RoleNameAdmin   = "admin"
	RoleNameTeacher = "teacher"
	RoleNameStaff   = "staff"
	RoleNameUser    = "user"
)

// BaseRoleName is the role every account falls back to when it holds no
// active membership.
const BaseRoleName = RoleNameUser

// Role defines a named rank in the authorization hierarchy. Higher
// priority means more senior.
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Description string    `db:"description" json:"description"`
	Priority    int       `db:"priority" json:"priority"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
