package scoring

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
)

// Residual is the outcome of combining inherent risk, coverage and enterprise risk
type Residual struct {
	InternalAuditScore float64
	InternalAuditLevel domain.RiskLevel
	CombinedScore      float64
	CombinedLevel      domain.RiskLevel
}

// Combine applies the haircut to inherent risk and blends the resulting
// internal-audit level with the enterprise residual level.
func (w *Weights) Combine(inherent, haircut float64, enterprise domain.RiskLevel) (Residual, error) {
	if !enterprise.Valid() {
		return Residual{}, goerr.Wrap(domain.ErrValidation, "unrecognized enterprise residual risk",
			goerr.V("value", enterprise))
	}
	if inherent < 0 {
		return Residual{}, goerr.Wrap(domain.ErrValidation, "inherent risk must be non-negative",
			goerr.V("value", inherent))
	}

	iaScore := roundScore(inherent * (1 - clamp01(haircut)))
	iaLevel := w.ClassifyInherent(iaScore)

	combined := roundScore(
		w.Weight(WeightResidualInternalAudit)*float64(iaLevel.Ordinal()) +
			w.Weight(WeightResidualEnterprise)*float64(enterprise.Ordinal()),
	)

	return Residual{
		InternalAuditScore: iaScore,
		InternalAuditLevel: iaLevel,
		CombinedScore:      combined,
		CombinedLevel:      w.ClassifyCombined(combined),
	}, nil
}

// ClassifyInherent buckets a score on the inherent scale
func (w *Weights) ClassifyInherent(score float64) domain.RiskLevel {
	return classify(roundScore(score), w.Threshold(ThresholdInherentHigh), w.Threshold(ThresholdInherentMedium))
}

// ClassifyCombined buckets a score on the combined 1-5 scale
func (w *Weights) ClassifyCombined(score float64) domain.RiskLevel {
	return classify(roundScore(score), w.Threshold(ThresholdCombinedHigh), w.Threshold(ThresholdCombinedMedium))
}

func classify(score, high, medium float64) domain.RiskLevel {
	switch {
	case score >= high:
		return domain.RiskLevelHigh
	case score >= medium:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}
