package models

import "time"

// Lab is a research unit owned by its principal investigator. Ownership
// drives authorization: a non-admin may only manage labs they lead.
type Lab struct {
	ID                      string     `db:"id" json:"id"`
	Slug                    string     `db:"slug" json:"slug"`
	Name                    string     `db:"name" json:"name"`
	NameEN                  string     `db:"name_en" json:"name_en"`
	Description             *string    `db:"description" json:"description,omitempty"`
	PrincipalInvestigatorID string     `db:"principal_investigator_id" json:"principal_investigator_id"`
	Location                *string    `db:"location" json:"location,omitempty"`
	Website                 *string    `db:"website" json:"website,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt               *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	Tags []Tag `db:"-" json:"tags,omitempty"`
}

// OwnerID implements the Owned contract used by the authorization engine.
func (l *Lab) OwnerID() string { return l.PrincipalInvestigatorID }

// LabFilter captures filtering criteria for listing labs.
type LabFilter struct {
	Keyword  string
	OwnerID  string
	Page     int
	PageSize int
}
