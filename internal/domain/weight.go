package domain

// WeightCategory groups entries of the weight table
type WeightCategory string

const (
	WeightCategoryRiskFactor        WeightCategory = "RiskFactor"
	WeightCategoryAssuranceCoverage WeightCategory = "AssuranceCoverage"
	WeightCategoryResidualRisk      WeightCategory = "ResidualRisk"
	WeightCategoryThreshold         WeightCategory = "Threshold"
	WeightCategoryCoverageRatio     WeightCategory = "CoverageRatio"
)

// Valid reports whether c is a known category
func (c WeightCategory) Valid() bool {
	switch c {
	case WeightCategoryRiskFactor, WeightCategoryAssuranceCoverage, WeightCategoryResidualRisk,
		WeightCategoryThreshold, WeightCategoryCoverageRatio:
		return true
	}
	return false
}

// RiskWeight is one configured numeric value used by the scoring pipeline
type RiskWeight struct {
	FactorName  string         `json:"factor_name" db:"factor_name"`
	Category    WeightCategory `json:"category" db:"category"`
	Weight      float64        `json:"weight" db:"weight"`
	Description string         `json:"description,omitempty" db:"description"`
}
