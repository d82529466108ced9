package models

import "time"

// Project is a research project owned by its principal investigator.
type Project struct {
	ID                      string     `db:"id" json:"id"`
	Slug                    string     `db:"slug" json:"slug"`
	Title                   string     `db:"title" json:"title"`
	TitleEN                 string     `db:"title_en" json:"title_en"`
	Summary                 *string    `db:"summary" json:"summary,omitempty"`
	PrincipalInvestigatorID string     `db:"principal_investigator_id" json:"principal_investigator_id"`
	FundingSource           *string    `db:"funding_source" json:"funding_source,omitempty"`
	StartsOn                *time.Time `db:"starts_on" json:"starts_on,omitempty"`
	EndsOn                  *time.Time `db:"ends_on" json:"ends_on,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt               *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	Tags []Tag `db:"-" json:"tags,omitempty"`
}

// OwnerID implements the Owned contract used by the authorization engine.
func (p *Project) OwnerID() string { return p.PrincipalInvestigatorID }

// ProjectFilter captures filtering criteria for listing projects.
type ProjectFilter struct {
	Keyword  string
	OwnerID  string
	Page     int
	PageSize int
}
