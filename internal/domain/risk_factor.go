package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Factor names one of the seven qualitative inherent-risk inputs
type Factor string

const (
	FactorFinancialImpact          Factor = "financial_impact"
	FactorLegalComplianceImpact    Factor = "legal_compliance_impact"
	FactorStrategicSignificance    Factor = "strategic_significance"
	FactorTechnologicalCyberImpact Factor = "technological_cyber_impact"
	FactorNewProcessSystem         Factor = "new_process_system"
	FactorStakeholderImpact        Factor = "stakeholder_impact"
	FactorCLevelConcerns           Factor = "c_level_concerns"
)

// Factors lists every inherent-risk factor in a stable order
var Factors = []Factor{
	FactorFinancialImpact,
	FactorLegalComplianceImpact,
	FactorStrategicSignificance,
	FactorTechnologicalCyberImpact,
	FactorNewProcessSystem,
	FactorStakeholderImpact,
	FactorCLevelConcerns,
}

// Ratings holds the seven qualitative risk ratings of an area
type Ratings struct {
	FinancialImpact          RiskLevel `json:"financial_impact" db:"financial_impact"`
	LegalComplianceImpact    RiskLevel `json:"legal_compliance_impact" db:"legal_compliance_impact"`
	StrategicSignificance    RiskLevel `json:"strategic_significance" db:"strategic_significance"`
	TechnologicalCyberImpact RiskLevel `json:"technological_cyber_impact" db:"technological_cyber_impact"`
	NewProcessSystem         RiskLevel `json:"new_process_system" db:"new_process_system"`
	StakeholderImpact        RiskLevel `json:"stakeholder_impact" db:"stakeholder_impact"`
	CLevelConcerns           RiskLevel `json:"c_level_concerns" db:"c_level_concerns"`
}

// DefaultRatings returns Medium for every factor
func DefaultRatings() Ratings {
	return Ratings{
		FinancialImpact:          RiskLevelMedium,
		LegalComplianceImpact:    RiskLevelMedium,
		StrategicSignificance:    RiskLevelMedium,
		TechnologicalCyberImpact: RiskLevelMedium,
		NewProcessSystem:         RiskLevelMedium,
		StakeholderImpact:        RiskLevelMedium,
		CLevelConcerns:           RiskLevelMedium,
	}
}

func (r *Ratings) field(f Factor) *RiskLevel {
	switch f {
	case FactorFinancialImpact:
		return &r.FinancialImpact
	case FactorLegalComplianceImpact:
		return &r.LegalComplianceImpact
	case FactorStrategicSignificance:
		return &r.StrategicSignificance
	case FactorTechnologicalCyberImpact:
		return &r.TechnologicalCyberImpact
	case FactorNewProcessSystem:
		return &r.NewProcessSystem
	case FactorStakeholderImpact:
		return &r.StakeholderImpact
	case FactorCLevelConcerns:
		return &r.CLevelConcerns
	}
	return nil
}

// Get returns the rating for f, or the empty level for an unknown factor
func (r Ratings) Get(f Factor) RiskLevel {
	if p := r.field(f); p != nil {
		return *p
	}
	return ""
}

// Validate reports the first rating outside the vocabulary
func (r Ratings) Validate() error {
	for _, f := range Factors {
		if l := r.Get(f); !l.Valid() {
			return goerr.Wrap(ErrValidation, "unrecognized risk level",
				goerr.V("factor", f), goerr.V("value", l))
		}
	}
	return nil
}

// RatingUpdate is a partial set of ratings keyed by factor
type RatingUpdate map[Factor]RiskLevel

// Validate rejects unknown factors and unknown levels
func (u RatingUpdate) Validate() error {
	if len(u) == 0 {
		return goerr.Wrap(ErrValidation, "rating update is empty")
	}
	for f, l := range u {
		var r Ratings
		if r.field(f) == nil {
			return goerr.Wrap(ErrValidation, "unrecognized risk factor", goerr.V("factor", f))
		}
		if !l.Valid() {
			return goerr.Wrap(ErrValidation, "unrecognized risk level",
				goerr.V("factor", f), goerr.V("value", l))
		}
	}
	return nil
}

// Apply overwrites the ratings named in u. Changed reports whether any value moved.
func (r *Ratings) Apply(u RatingUpdate) (changed bool) {
	for f, l := range u {
		p := r.field(f)
		if p == nil {
			continue
		}
		if *p != l {
			*p = l
			changed = true
		}
	}
	return changed
}

// RiskFactor holds one area's risk inputs and every value derived from them.
// The derived block is only meaningful as a whole: it is rewritten together
// on each recalculation.
type RiskFactor struct {
	ID              uuid.UUID `json:"id" db:"id"`
	AuditableAreaID uuid.UUID `json:"auditable_area_id" db:"auditable_area_id"`

	// Inputs
	Ratings                Ratings   `json:"ratings"`
	EnterpriseResidualRisk RiskLevel `json:"erm_residual_risk" db:"erm_residual_risk"`

	// Derived
	InherentRiskScore          float64   `json:"inherent_risk_score" db:"inherent_risk_score"`
	AssuranceHaircut           float64   `json:"assurance_haircut" db:"assurance_haircut"`
	InternalAuditResidualScore float64   `json:"internal_audit_residual_score" db:"internal_audit_residual_score"`
	InternalAuditResidualRisk  RiskLevel `json:"internal_audit_residual_risk" db:"internal_audit_residual_risk"`
	CombinedResidualRisk       float64   `json:"combined_residual_risk" db:"combined_residual_risk"`
	CombinedResidualRiskLevel  RiskLevel `json:"combined_residual_risk_level" db:"combined_residual_risk_level"`

	// Bookkeeping
	WeightsVersion uint64    `json:"weights_version" db:"weights_version"`
	CalculatedAt   time.Time `json:"calculated_at" db:"calculated_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// NewRiskFactor creates the record an area gets on its first rating edit
func NewRiskFactor(areaID uuid.UUID, now time.Time) *RiskFactor {
	return &RiskFactor{
		ID:                     uuid.New(),
		AuditableAreaID:        areaID,
		Ratings:                DefaultRatings(),
		EnterpriseResidualRisk: RiskLevelMedium,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Validate checks the stored inputs. Derived fields are not inspected; they
// are recomputed from the inputs.
func (f *RiskFactor) Validate() error {
	if err := f.Ratings.Validate(); err != nil {
		return goerr.Wrap(err, "invalid risk ratings", goerr.V("area_id", f.AuditableAreaID))
	}
	if !f.EnterpriseResidualRisk.Valid() {
		return goerr.Wrap(ErrValidation, "unrecognized enterprise residual risk",
			goerr.V("area_id", f.AuditableAreaID), goerr.V("value", f.EnterpriseResidualRisk))
	}
	return nil
}
