package models

import (
	"encoding/json"
	"time"
)

// UserStatus is persisted as a small integer and exposed by name.
type UserStatus uint8

const (
	UserStatusActive   UserStatus = 1
	UserStatusInactive UserStatus = 2
)

var userStatusNames = map[UserStatus]string{
	UserStatusActive:   "active",
	UserStatusInactive: "inactive",
}

// String returns the stable name for the stored value. Unknown values
// read as "inactive" so a corrupt row never gains access.
func (s UserStatus) String() string {
	if name, ok := userStatusNames[s]; ok {
		return name
	}
	return "inactive"
}

// Valid reports whether the stored value is part of the mapping.
func (s UserStatus) Valid() bool {
	_, ok := userStatusNames[s]
	return ok
}

// ParseUserStatus maps a name back to its stored value, falling back to
// active for unrecognized input.
func ParseUserStatus(name string) UserStatus {
	for value, n := range userStatusNames {
		if n == name {
			return value
		}
	}
	return UserStatusActive
}

// MarshalJSON emits the stable string name; the integer mapping stays a
// storage detail.
func (s UserStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *UserStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*s = ParseUserStatus(name)
	return nil
}

// User represents a login identity. Soft deletion is explicit: read
// paths must filter DeletedAt unless they opt in to trashed rows.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Locale       string     `db:"locale" json:"locale"`
	Status       UserStatus `db:"status" json:"status"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	// Grants holds the user's memberships joined with role data. Loaded
	// separately; not a column.
	Grants []RoleGrant `db:"-" json:"grants,omitempty"`
}

// ActiveRoles returns the distinct role names held through active
// memberships, most senior first.
func (u *User) ActiveRoles() []string {
	seen := make(map[string]struct{}, len(u.Grants))
	var names []string
	for _, grant := range u.sortedActiveGrants() {
		if _, ok := seen[grant.RoleName]; ok {
			continue
		}
		seen[grant.RoleName] = struct{}{}
		names = append(names, grant.RoleName)
	}
	return names
}

// PrimaryRole returns the highest-priority active role name, or the base
// role when the user holds no active membership.
func (u *User) PrimaryRole() string {
	grants := u.sortedActiveGrants()
	if len(grants) == 0 {
		return BaseRoleName
	}
	return grants[0].RoleName
}

// HasRole reports whether the user holds an active membership for the
// named role.
func (u *User) HasRole(name string) bool {
	for _, grant := range u.Grants {
		if grant.Status == MembershipActive && grant.RoleName == name {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole("admin").
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleNameAdmin)
}

// IsTeacher is shorthand for HasRole("teacher").
func (u *User) IsTeacher() bool {
	return u.HasRole(RoleNameTeacher)
}

func (u *User) sortedActiveGrants() []RoleGrant {
	active := make([]RoleGrant, 0, len(u.Grants))
	for _, grant := range u.Grants {
		if grant.Status == MembershipActive {
			active = append(active, grant)
		}
	}
	for i := 1; i < len(active); i++ {
		for j := i; j > 0 && active[j].Priority > active[j-1].Priority; j-- {
			active[j], active[j-1] = active[j-1], active[j]
		}
	}
	return active
}

// ManagedScope is the list-scoping predicate produced by the
// authorization engine for "which users can this actor manage".
type ManagedScope int

const (
	// ManagedScopeNone yields the empty set.
	ManagedScopeNone ManagedScope = iota
	// ManagedScopeNonAdmins yields every user not holding an active
	// admin membership (the admin view).
	ManagedScopeNonAdmins
	// ManagedScopeBaseOnly yields only users whose sole active role is
	// the base role (the teacher view).
	ManagedScopeBaseOnly
)

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role        string
	Status      *UserStatus
	Search      string
	Scope       ManagedScope
	WithTrashed bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
