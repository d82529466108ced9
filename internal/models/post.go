package models

import (
	"encoding/json"
	"time"
)

// PostStatus is the persisted lifecycle state of a post. The integer
// mapping is versioned: changing a value without a data migration
// corrupts existing rows.
type PostStatus uint8

const (
	PostStatusDraft     PostStatus = 0
	PostStatusPublished PostStatus = 1
	PostStatusHidden    PostStatus = 2
	PostStatusScheduled PostStatus = 3
	PostStatusArchived  PostStatus = 4
)

var postStatusNames = map[PostStatus]string{
	PostStatusDraft:     "draft",
	PostStatusPublished: "published",
	PostStatusHidden:    "hidden",
	PostStatusScheduled: "scheduled",
	PostStatusArchived:  "archived",
}

func (s PostStatus) String() string {
	if name, ok := postStatusNames[s]; ok {
		return name
	}
	return "draft"
}

// Valid reports whether the stored value is part of the mapping.
func (s PostStatus) Valid() bool {
	_, ok := postStatusNames[s]
	return ok
}

// ParsePostStatus maps a status name to its stored value. Unrecognized
// or empty input falls back to draft; the second return reports whether
// the name was recognized so callers can log the coercion.
func ParsePostStatus(name string) (PostStatus, bool) {
	for value, n := range postStatusNames {
		if n == name {
			return value, true
		}
	}
	return PostStatusDraft, false
}

// MarshalJSON emits the stable string name; the integer mapping stays a
// storage detail.
func (s PostStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PostStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, _ := ParsePostStatus(name)
	*s = parsed
	return nil
}

// PostVisibility controls the audience a post is listed for.
type PostVisibility uint8

const (
	PostVisibilityPublic   PostVisibility = 1
	PostVisibilityInternal PostVisibility = 2
	PostVisibilityPrivate  PostVisibility = 3
)

var postVisibilityNames = map[PostVisibility]string{
	PostVisibilityPublic:   "public",
	PostVisibilityInternal: "internal",
	PostVisibilityPrivate:  "private",
}

func (v PostVisibility) String() string {
	if name, ok := postVisibilityNames[v]; ok {
		return name
	}
	return "public"
}

// Valid reports whether the stored value is part of the mapping.
func (v PostVisibility) Valid() bool {
	_, ok := postVisibilityNames[v]
	return ok
}

// ParsePostVisibility falls back to public for unrecognized input.
func ParsePostVisibility(name string) (PostVisibility, bool) {
	for value, n := range postVisibilityNames {
		if n == name {
			return value, true
		}
	}
	return PostVisibilityPublic, false
}

// MarshalJSON emits the stable string name.
func (v PostVisibility) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *PostVisibility) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, _ := ParsePostVisibility(name)
	*v = parsed
	return nil
}

// PostSourceType records where the content came from.
type PostSourceType uint8

const (
	PostSourceManual   PostSourceType = 1
	PostSourceImport   PostSourceType = 2
	PostSourceExternal PostSourceType = 3
)

var postSourceNames = map[PostSourceType]string{
	PostSourceManual:   "manual",
	PostSourceImport:   "import",
	PostSourceExternal: "external",
}

func (t PostSourceType) String() string {
	if name, ok := postSourceNames[t]; ok {
		return name
	}
	return "manual"
}

// Valid reports whether the stored value is part of the mapping.
func (t PostSourceType) Valid() bool {
	_, ok := postSourceNames[t]
	return ok
}

// ParsePostSourceType falls back to manual for unrecognized input.
func ParsePostSourceType(name string) (PostSourceType, bool) {
	for value, n := range postSourceNames {
		if n == name {
			return value, true
		}
	}
	return PostSourceManual, false
}

// MarshalJSON emits the stable string name.
func (t PostSourceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PostSourceType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, _ := ParsePostSourceType(name)
	*t = parsed
	return nil
}

// Post is a publishable announcement owned by a category and optionally
// bound to a space (lab or classroom container).
type Post struct {
	ID          string         `db:"id" json:"id"`
	CategoryID  string         `db:"category_id" json:"category_id"`
	SpaceID     *string        `db:"space_id" json:"space_id,omitempty"`
	Slug        string         `db:"slug" json:"slug"`
	Status      PostStatus     `db:"status" json:"status"`
	Visibility  PostVisibility `db:"visibility" json:"visibility"`
	SourceType  PostSourceType `db:"source_type" json:"source_type"`
	SourceURL   *string        `db:"source_url" json:"source_url,omitempty"`
	PublishedAt *time.Time     `db:"published_at" json:"published_at,omitempty"`
	ExpireAt    *time.Time     `db:"expire_at" json:"expire_at,omitempty"`
	Pinned      bool           `db:"pinned" json:"pinned"`
	Title       string         `db:"title" json:"title"`
	TitleEN     string         `db:"title_en" json:"title_en"`
	Summary     *string        `db:"summary" json:"summary,omitempty"`
	SummaryEN   *string        `db:"summary_en" json:"summary_en,omitempty"`
	Content     string         `db:"content" json:"content"`
	ContentEN   string         `db:"content_en" json:"content_en"`
	Views       int64          `db:"views" json:"views"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	UpdatedBy   string         `db:"updated_by" json:"updated_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`

	// Tags are loaded through the post_tags association; not a column.
	Tags []Tag `db:"-" json:"tags,omitempty"`
}

// OwnerID implements the Owned contract used by the authorization engine.
func (p *Post) OwnerID() string { return p.CreatedBy }

// StatusName exposes the stable string name of the stored status.
func (p *Post) StatusName() string { return p.Status.String() }

// VisibilityName exposes the stable string name of the visibility.
func (p *Post) VisibilityName() string { return p.Visibility.String() }

// SourceTypeName exposes the stable string name of the source type.
func (p *Post) SourceTypeName() string { return p.SourceType.String() }

// EffectivelyVisibleAt reports whether the post belongs in the publicly
// visible set at the given instant. A published post is always visible;
// a scheduled post becomes visible once its publish time has passed
// without any write — the stored status is never rewritten.
func (p *Post) EffectivelyVisibleAt(now time.Time) bool {
	if p.DeletedAt != nil {
		return false
	}
	if p.ExpireAt != nil && !now.Before(*p.ExpireAt) {
		return false
	}
	switch p.Status {
	case PostStatusPublished:
		return true
	case PostStatusScheduled:
		return p.PublishedAt != nil && !p.PublishedAt.After(now)
	default:
		return false
	}
}

// NormalizeEnums coerces unknown persisted enum values to their type
// defaults, returning the names of coerced fields so the persistence
// boundary can log the data-quality issue.
func (p *Post) NormalizeEnums() []string {
	var coerced []string
	if !p.Status.Valid() {
		p.Status = PostStatusDraft
		coerced = append(coerced, "status")
	}
	if !p.Visibility.Valid() {
		p.Visibility = PostVisibilityPublic
		coerced = append(coerced, "visibility")
	}
	if !p.SourceType.Valid() {
		p.SourceType = PostSourceManual
		coerced = append(coerced, "source_type")
	}
	return coerced
}

// LocalizedTitle bundles the bilingual title columns.
func (p *Post) LocalizedTitle() LocalizedText {
	return LocalizedText{Primary: p.Title, Secondary: p.TitleEN}
}

// LocalizedContent bundles the bilingual content columns.
func (p *Post) LocalizedContent() LocalizedText {
	return LocalizedText{Primary: p.Content, Secondary: p.ContentEN}
}

// PostCategory groups posts; every post belongs to exactly one.
type PostCategory struct {
	ID        string     `db:"id" json:"id"`
	ParentID  *string    `db:"parent_id" json:"parent_id,omitempty"`
	Slug      string     `db:"slug" json:"slug"`
	Name      string     `db:"name" json:"name"`
	NameEN    string     `db:"name_en" json:"name_en"`
	SortOrder int        `db:"sort_order" json:"sort_order"`
	Visible   bool       `db:"visible" json:"visible"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// PostFilter captures filtering criteria for the management listing.
type PostFilter struct {
	Keyword     string
	Status      *PostStatus
	CategoryID  string
	Tag         string
	CreatedBy   string
	WithTrashed bool
	Page        int
	PageSize    int
}
