package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Category groups auditable areas by business domain
type Category string

const (
	CategoryOperational Category = "Operational"
	CategoryFinancial   Category = "Financial"
	CategoryIT          Category = "IT"
	CategoryCompliance  Category = "Compliance"
	CategoryHR          Category = "HR"
)

// Valid reports whether c belongs to the fixed vocabulary
func (c Category) Valid() bool {
	switch c {
	case CategoryOperational, CategoryFinancial, CategoryIT, CategoryCompliance, CategoryHR:
		return true
	}
	return false
}

// AuditResult is the outcome of the most recent audit
type AuditResult string

const (
	AuditResultNone           AuditResult = "None"
	AuditResultNoFindings     AuditResult = "No findings"
	AuditResultMediumFindings AuditResult = "Medium findings"
	AuditResultHighFindings   AuditResult = "High findings"
)

// Valid reports whether r belongs to the fixed vocabulary
func (r AuditResult) Valid() bool {
	switch r {
	case AuditResultNone, AuditResultNoFindings, AuditResultMediumFindings, AuditResultHighFindings:
		return true
	}
	return false
}

// AuditableArea is the aggregate root every derived record hangs off.
// The area itself is maintained by an external management workflow.
type AuditableArea struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	BusinessUnit string    `json:"business_unit" db:"business_unit"`
	Category     Category  `json:"category" db:"category"`

	// Regulatory context
	RegulatoryRequirement bool   `json:"regulatory_requirement" db:"regulatory_requirement"`
	Regulation            string `json:"regulation,omitempty" db:"regulation"`

	// Last audit
	LastAuditDate   *time.Time   `json:"last_audit_date,omitempty" db:"last_audit_date"`
	LastAuditResult *AuditResult `json:"last_audit_result,omitempty" db:"last_audit_result"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the enumerated fields of the area
func (a *AuditableArea) Validate() error {
	if a.ID == uuid.Nil {
		return goerr.Wrap(ErrValidation, "area id is required")
	}
	if !a.Category.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized area category",
			goerr.V("area_id", a.ID), goerr.V("value", a.Category))
	}
	if a.LastAuditResult != nil && !a.LastAuditResult.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized last audit result",
			goerr.V("area_id", a.ID), goerr.V("value", *a.LastAuditResult))
	}
	return nil
}
