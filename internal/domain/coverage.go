package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// AssuranceCoverage records how well one provider covers an area.
// There is at most one record per (area, provider).
type AssuranceCoverage struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	AuditableAreaID   uuid.UUID     `json:"auditable_area_id" db:"auditable_area_id"`
	ProviderType      ProviderType  `json:"provider_type" db:"provider_type"`
	CoverageLevel     CoverageLevel `json:"coverage_level" db:"coverage_level"`
	LastAssuranceDate *time.Time    `json:"last_assurance_date,omitempty" db:"last_assurance_date"`
	Comments          *string       `json:"comments,omitempty" db:"comments"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

// Validate checks the enumerated fields
func (c *AssuranceCoverage) Validate() error {
	if !c.ProviderType.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized provider type",
			goerr.V("area_id", c.AuditableAreaID), goerr.V("value", c.ProviderType))
	}
	if !c.CoverageLevel.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized coverage level",
			goerr.V("area_id", c.AuditableAreaID), goerr.V("value", c.CoverageLevel))
	}
	return nil
}

// CoverageUpdate is a caller's rating of one provider's coverage. A nil date
// or comment keeps the stored value; the Clear flags remove it.
type CoverageUpdate struct {
	Provider               ProviderType
	Level                  CoverageLevel
	LastAssuranceDate      *time.Time
	Comments               *string
	ClearLastAssuranceDate bool
	ClearComments          bool
}

// Validate rejects values outside the vocabularies
func (u CoverageUpdate) Validate() error {
	if !u.Provider.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized provider type", goerr.V("value", u.Provider))
	}
	if !u.Level.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized coverage level", goerr.V("value", u.Level))
	}
	if u.ClearLastAssuranceDate && u.LastAssuranceDate != nil {
		return goerr.Wrap(ErrValidation, "last assurance date cannot be set and cleared at once")
	}
	if u.ClearComments && u.Comments != nil {
		return goerr.Wrap(ErrValidation, "comments cannot be set and cleared at once")
	}
	return nil
}
