package domain

import (
	"github.com/m-mizutani/goerr/v2"
)

// RiskLevel is the qualitative rating used for risk factors and residual risk
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// RiskLevels lists the vocabulary in ascending severity
var RiskLevels = []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh}

// Valid reports whether l belongs to the fixed vocabulary
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// Ordinal maps the level onto the 1-5 residual scale (Low=1, Medium=3, High=5)
func (l RiskLevel) Ordinal() int {
	switch l {
	case RiskLevelHigh:
		return 5
	case RiskLevelMedium:
		return 3
	default:
		return 1
	}
}

// ParseRiskLevel validates an externally supplied rating
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(s)
	if !l.Valid() {
		return "", goerr.Wrap(ErrValidation, "unrecognized risk level", goerr.V("value", s))
	}
	return l, nil
}

// CoverageLevel is the qualitative assurance coverage rating
type CoverageLevel string

const (
	CoverageComprehensive CoverageLevel = "Comprehensive"
	CoverageModerate      CoverageLevel = "Moderate"
	CoverageLimited       CoverageLevel = "Limited"
)

// Valid reports whether c belongs to the fixed vocabulary
func (c CoverageLevel) Valid() bool {
	switch c {
	case CoverageComprehensive, CoverageModerate, CoverageLimited:
		return true
	}
	return false
}

// ParseCoverageLevel validates an externally supplied coverage rating
func ParseCoverageLevel(s string) (CoverageLevel, error) {
	c := CoverageLevel(s)
	if !c.Valid() {
		return "", goerr.Wrap(ErrValidation, "unrecognized coverage level", goerr.V("value", s))
	}
	return c, nil
}

// ProviderType identifies who supplies assurance over an area
type ProviderType string

const (
	ProviderInternalAudit ProviderType = "InternalAudit"
	ProviderThirdParty    ProviderType = "ThirdParty"
)

// ProviderTypes lists every provider in a stable order
var ProviderTypes = []ProviderType{ProviderInternalAudit, ProviderThirdParty}

// Valid reports whether p belongs to the fixed vocabulary
func (p ProviderType) Valid() bool {
	return p == ProviderInternalAudit || p == ProviderThirdParty
}

// ParseProviderType validates an externally supplied provider type
func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(s)
	if !p.Valid() {
		return "", goerr.Wrap(ErrValidation, "unrecognized provider type", goerr.V("value", s))
	}
	return p, nil
}
