package models

import "time"

// Tag contexts scope uniqueness so the same word can exist as a distinct
// tag per resource family.
const (
	TagContextPosts    = "posts"
	TagContextLabs     = "labs"
	TagContextProjects = "projects"
)

// Tag is a context-scoped label. Tags are created on demand and never
// auto-deleted when unused; orphans are tolerated.
type Tag struct {
	ID          string     `db:"id" json:"id"`
	Context     string     `db:"context" json:"context"`
	Name        string     `db:"name" json:"name"`
	Slug        string     `db:"slug" json:"slug"`
	Description *string    `db:"description" json:"description,omitempty"`
	SortOrder   int        `db:"sort_order" json:"sort_order"`
	Active      bool       `db:"active" json:"active"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TagFilter captures filtering criteria for listing tags.
type TagFilter struct {
	Context  string
	Search   string
	Page     int
	PageSize int
}
