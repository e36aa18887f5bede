package scoring

import (
	"math"

	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
)

// Rating multipliers on the inherent scale
var ratingMultipliers = map[domain.RiskLevel]float64{
	domain.RiskLevelLow:    0.5,
	domain.RiskLevelMedium: 1.5,
	domain.RiskLevelHigh:   2.5,
}

// RatingMultiplier returns the inherent-scale multiplier of a rating
func RatingMultiplier(l domain.RiskLevel) (float64, error) {
	m, ok := ratingMultipliers[l]
	if !ok {
		return 0, goerr.Wrap(domain.ErrValidation, "unrecognized risk level", goerr.V("value", l))
	}
	return m, nil
}

// InherentRisk is the weighted sum of the rating multipliers over the seven factors
func (w *Weights) InherentRisk(r domain.Ratings) (float64, error) {
	score := 0.0
	for _, f := range domain.Factors {
		m, err := RatingMultiplier(r.Get(f))
		if err != nil {
			return 0, goerr.Wrap(err, "cannot score factor", goerr.V("factor", f))
		}
		score += m * w.Weight(string(f))
	}
	return roundScore(score), nil
}

// Scores are rounded to this precision before classification and persistence
const scorePrecision = 1e9

func roundScore(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}
