package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Priority bounds. 1 is the most urgent.
const (
	MinPriorityLevel = 1
	MaxPriorityLevel = 6
)

// PriorityResult is the audit priority derived for an area.
// Overridden results were set by a person and survive bulk recomputation.
type PriorityResult struct {
	AuditableAreaID   uuid.UUID `json:"auditable_area_id" db:"auditable_area_id"`
	PriorityLevel     int       `json:"priority_level" db:"priority_level"`
	ProposedAuditYear int       `json:"proposed_audit_year" db:"proposed_audit_year"`
	Justification     *string   `json:"justification,omitempty" db:"justification"`
	Overridden        bool      `json:"overridden" db:"overridden"`
	CalculatedAt      time.Time `json:"calculated_at" db:"calculated_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// PriorityOverride is a manual priority assignment
type PriorityOverride struct {
	PriorityLevel     int
	ProposedAuditYear int
	Justification     string
}

// Validate checks the override against the priority scale
func (o PriorityOverride) Validate() error {
	if o.PriorityLevel < MinPriorityLevel || o.PriorityLevel > MaxPriorityLevel {
		return goerr.Wrap(ErrValidation, "priority level out of range",
			goerr.V("value", o.PriorityLevel),
			goerr.V("min", MinPriorityLevel),
			goerr.V("max", MaxPriorityLevel))
	}
	if o.ProposedAuditYear < 2000 || o.ProposedAuditYear > 2200 {
		return goerr.Wrap(ErrValidation, "proposed audit year out of range",
			goerr.V("value", o.ProposedAuditYear))
	}
	if o.Justification == "" {
		return goerr.Wrap(ErrValidation, "override requires a justification")
	}
	return nil
}

// PriorityBand is the display band of a priority level
type PriorityBand string

const (
	PriorityBandUrgent  PriorityBand = "urgent"
	PriorityBandPlanned PriorityBand = "planned"
	PriorityBandRoutine PriorityBand = "routine"
)

// PriorityBandFor buckets priority levels for reporting: 1-3 urgent, 4-6 planned, anything else routine
func PriorityBandFor(level int) PriorityBand {
	switch {
	case level <= 3:
		return PriorityBandUrgent
	case level <= 6:
		return PriorityBandPlanned
	default:
		return PriorityBandRoutine
	}
}

// PriorityEntry is one row of the audit plan across all areas. Areas that
// were never scheduled carry no priority, year or band.
type PriorityEntry struct {
	AuditableAreaID           uuid.UUID    `json:"auditable_area_id" db:"auditable_area_id"`
	Name                      string       `json:"name" db:"name"`
	BusinessUnit              string       `json:"business_unit" db:"business_unit"`
	Category                  Category     `json:"category" db:"category"`
	RegulatoryRequirement     bool         `json:"regulatory_requirement" db:"regulatory_requirement"`
	CombinedResidualRiskLevel RiskLevel    `json:"combined_residual_risk_level,omitempty" db:"combined_residual_risk_level"`
	AssuranceHaircut          *float64     `json:"assurance_haircut,omitempty" db:"assurance_haircut"`
	PriorityLevel             *int         `json:"priority_level,omitempty" db:"priority_level"`
	ProposedAuditYear         *int         `json:"proposed_audit_year,omitempty" db:"proposed_audit_year"`
	Overridden                bool         `json:"overridden" db:"overridden"`
	Band                      PriorityBand `json:"band,omitempty"`
}

// PriorityFilter narrows the audit plan. Zero fields match everything.
type PriorityFilter struct {
	Year  *int
	Level RiskLevel
}

// Validate rejects years outside the planning range and unknown levels
func (f PriorityFilter) Validate() error {
	if f.Year != nil && (*f.Year < 2000 || *f.Year > 2200) {
		return goerr.Wrap(ErrValidation, "proposed audit year out of range", goerr.V("value", *f.Year))
	}
	if f.Level != "" && !f.Level.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized risk level", goerr.V("value", f.Level))
	}
	return nil
}

// Match reports whether e passes the filter
func (f PriorityFilter) Match(e *PriorityEntry) bool {
	if f.Year != nil && (e.ProposedAuditYear == nil || *e.ProposedAuditYear != *f.Year) {
		return false
	}
	if f.Level != "" && e.CombinedResidualRiskLevel != f.Level {
		return false
	}
	return true
}

// SortPriorityEntries orders the plan by priority level, unscheduled areas
// last, then by area name and ID
func SortPriorityEntries(entries []PriorityEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.PriorityLevel == nil) != (b.PriorityLevel == nil) {
			return a.PriorityLevel != nil
		}
		if a.PriorityLevel != nil && *a.PriorityLevel != *b.PriorityLevel {
			return *a.PriorityLevel < *b.PriorityLevel
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.AuditableAreaID.String() < b.AuditableAreaID.String()
	})
}
