package scoring

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
)

var coverageBlendWeight = map[domain.ProviderType]string{
	domain.ProviderInternalAudit: WeightCoverageInternalAudit,
	domain.ProviderThirdParty:    WeightCoverageThirdParty,
}

// Haircut blends the coverage ratio of each provider into one discount in [0,1].
// A provider without a rating counts as Limited.
func (w *Weights) Haircut(levels map[domain.ProviderType]domain.CoverageLevel) (float64, error) {
	for p, l := range levels {
		if !p.Valid() {
			return 0, goerr.Wrap(domain.ErrValidation, "unrecognized provider type", goerr.V("value", p))
		}
		if !l.Valid() {
			return 0, goerr.Wrap(domain.ErrValidation, "unrecognized coverage level",
				goerr.V("provider", p), goerr.V("value", l))
		}
	}

	var weighted, totalWeight, plain float64
	for _, p := range domain.ProviderTypes {
		level, ok := levels[p]
		if !ok {
			level = domain.CoverageLimited
		}
		ratio := w.CoverageRatio(level)
		weight := w.Weight(coverageBlendWeight[p])
		weighted += ratio * weight
		totalWeight += weight
		plain += ratio
	}

	haircut := plain / float64(len(domain.ProviderTypes))
	if totalWeight > 0 {
		haircut = weighted / totalWeight
	}
	return roundScore(clamp01(haircut)), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
