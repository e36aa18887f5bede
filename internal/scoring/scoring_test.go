package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

func defaultWeightsSnapshot(t *testing.T) *Weights {
	t.Helper()
	return NewWeightConfig(logger.NewNop()).Current()
}

func scenarioRatings() domain.Ratings {
	return domain.Ratings{
		FinancialImpact:          domain.RiskLevelHigh,
		LegalComplianceImpact:    domain.RiskLevelMedium,
		StrategicSignificance:    domain.RiskLevelHigh,
		TechnologicalCyberImpact: domain.RiskLevelMedium,
		NewProcessSystem:         domain.RiskLevelLow,
		StakeholderImpact:        domain.RiskLevelHigh,
		CLevelConcerns:           domain.RiskLevelHigh,
	}
}

func TestInherentRisk_Scenario(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	score, err := w.InherentRisk(scenarioRatings())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, score, 1e-9)
}

func TestInherentRisk_AllMediumDefaults(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	score, err := w.InherentRisk(domain.DefaultRatings())
	require.NoError(t, err)
	assert.InDelta(t, 1.5, score, 1e-9)
}

func TestInherentRisk_RejectsUnknownRating(t *testing.T) {
	w := defaultWeightsSnapshot(t)
	r := domain.DefaultRatings()
	r.StakeholderImpact = "Extreme"

	_, err := w.InherentRisk(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestInherentRisk_MonotonicPerFactor(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	for _, f := range domain.Factors {
		t.Run(string(f), func(t *testing.T) {
			prev := -1.0
			for _, level := range domain.RiskLevels {
				r := domain.DefaultRatings()
				r.Apply(domain.RatingUpdate{f: level})
				score, err := w.InherentRisk(r)
				require.NoError(t, err)
				assert.Greater(t, score, prev, "raising %s to %s must not lower the score", f, level)
				prev = score
			}
		})
	}
}

func TestHaircut(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	tests := []struct {
		name   string
		levels map[domain.ProviderType]domain.CoverageLevel
		want   float64
	}{
		{
			name: "comprehensive and moderate",
			levels: map[domain.ProviderType]domain.CoverageLevel{
				domain.ProviderInternalAudit: domain.CoverageComprehensive,
				domain.ProviderThirdParty:    domain.CoverageModerate,
			},
			want: 0.725,
		},
		{
			name:   "no coverage counts as limited",
			levels: nil,
			want:   0.15,
		},
		{
			name: "one provider only",
			levels: map[domain.ProviderType]domain.CoverageLevel{
				domain.ProviderThirdParty: domain.CoverageComprehensive,
			},
			want: 0.55,
		},
		{
			name: "both comprehensive",
			levels: map[domain.ProviderType]domain.CoverageLevel{
				domain.ProviderInternalAudit: domain.CoverageComprehensive,
				domain.ProviderThirdParty:    domain.CoverageComprehensive,
			},
			want: 0.95,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Haircut(tt.levels)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestHaircut_OrderedAndBounded(t *testing.T) {
	w := defaultWeightsSnapshot(t)
	levels := []domain.CoverageLevel{domain.CoverageLimited, domain.CoverageModerate, domain.CoverageComprehensive}

	for _, tp := range levels {
		prev := -1.0
		for _, ia := range levels {
			h, err := w.Haircut(map[domain.ProviderType]domain.CoverageLevel{
				domain.ProviderInternalAudit: ia,
				domain.ProviderThirdParty:    tp,
			})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, h, 0.0)
			assert.LessOrEqual(t, h, 1.0)
			assert.Greater(t, h, prev)
			prev = h
		}
	}
}

func TestHaircut_ZeroBlendWeightsFallsBackToMean(t *testing.T) {
	c := NewWeightConfig(logger.NewNop())
	entries := DefaultEntries()
	for i := range entries {
		if entries[i].Category == domain.WeightCategoryAssuranceCoverage {
			entries[i].Weight = 0
		}
	}
	c.Load("test", entries)

	h, err := c.Current().Haircut(map[domain.ProviderType]domain.CoverageLevel{
		domain.ProviderInternalAudit: domain.CoverageComprehensive,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, h, 1e-9)
}

func TestHaircut_RejectsUnknownLevel(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	_, err := w.Haircut(map[domain.ProviderType]domain.CoverageLevel{
		domain.ProviderInternalAudit: "Total",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCombine_Scenarios(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	t.Run("well covered area with medium enterprise risk", func(t *testing.T) {
		r, err := w.Combine(2.0, 0.725, domain.RiskLevelMedium)
		require.NoError(t, err)
		assert.InDelta(t, 0.55, r.InternalAuditScore, 1e-9)
		assert.Equal(t, domain.RiskLevelLow, r.InternalAuditLevel)
		assert.InDelta(t, 1.4, r.CombinedScore, 1e-9)
		assert.Equal(t, domain.RiskLevelLow, r.CombinedLevel)
	})

	t.Run("uncovered area with high enterprise risk", func(t *testing.T) {
		r, err := w.Combine(2.0, 0.15, domain.RiskLevelHigh)
		require.NoError(t, err)
		assert.InDelta(t, 1.7, r.InternalAuditScore, 1e-9)
		assert.Equal(t, domain.RiskLevelMedium, r.InternalAuditLevel)
		assert.InDelta(t, 3.4, r.CombinedScore, 1e-9)
		assert.Equal(t, domain.RiskLevelMedium, r.CombinedLevel)
	})

	t.Run("high on both", func(t *testing.T) {
		r, err := w.Combine(2.5, 0, domain.RiskLevelHigh)
		require.NoError(t, err)
		assert.Equal(t, domain.RiskLevelHigh, r.InternalAuditLevel)
		assert.InDelta(t, 5.0, r.CombinedScore, 1e-9)
		assert.Equal(t, domain.RiskLevelHigh, r.CombinedLevel)
	})

	t.Run("unknown enterprise level", func(t *testing.T) {
		_, err := w.Combine(1, 0.5, "Severe")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestClassify_ExactBoundaries(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	assert.Equal(t, domain.RiskLevelHigh, w.ClassifyCombined(3.6))
	assert.Equal(t, domain.RiskLevelMedium, w.ClassifyCombined(3.5999))
	assert.Equal(t, domain.RiskLevelMedium, w.ClassifyCombined(2.1))
	assert.Equal(t, domain.RiskLevelLow, w.ClassifyCombined(2.0999))

	assert.Equal(t, domain.RiskLevelHigh, w.ClassifyInherent(1.8))
	assert.Equal(t, domain.RiskLevelMedium, w.ClassifyInherent(1.7999))
	assert.Equal(t, domain.RiskLevelMedium, w.ClassifyInherent(1.0))
	assert.Equal(t, domain.RiskLevelLow, w.ClassifyInherent(0.9999))
}

func TestClassify_FloatNoiseDoesNotCrossThreshold(t *testing.T) {
	w := defaultWeightsSnapshot(t)

	noisy := 0.6 + 3.0 - 1e-12
	assert.Equal(t, domain.RiskLevelHigh, w.ClassifyCombined(noisy))
}

func TestPriorityPolicy_Table(t *testing.T) {
	p := DefaultPriorityPolicy()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		level      domain.RiskLevel
		regulatory bool
		priority   int
		year       int
	}{
		{domain.RiskLevelHigh, true, 1, 2026},
		{domain.RiskLevelHigh, false, 2, 2026},
		{domain.RiskLevelMedium, true, 3, 2026},
		{domain.RiskLevelMedium, false, 4, 2027},
		{domain.RiskLevelLow, true, 5, 2027},
		{domain.RiskLevelLow, false, 6, 2028},
	}

	for _, tt := range tests {
		s, err := p.Schedule(tt.level, tt.regulatory, now)
		require.NoError(t, err)
		assert.Equal(t, tt.priority, s.PriorityLevel, "%s regulatory=%v", tt.level, tt.regulatory)
		assert.Equal(t, tt.year, s.ProposedAuditYear, "%s regulatory=%v", tt.level, tt.regulatory)
	}
}

func TestPriorityPolicy_MonotonicUnderCustomOffsets(t *testing.T) {
	p := NewPriorityPolicy(&config.PriorityConfig{YearOffsetHigh: 2, YearOffsetMedium: 2, YearOffsetLow: 0})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	prevPriority, prevYear := 0, 0
	for _, level := range []domain.RiskLevel{domain.RiskLevelHigh, domain.RiskLevelMedium, domain.RiskLevelLow} {
		for _, regulatory := range []bool{true, false} {
			s, err := p.Schedule(level, regulatory, now)
			require.NoError(t, err)
			assert.Greater(t, s.PriorityLevel, prevPriority)
			assert.GreaterOrEqual(t, s.ProposedAuditYear, prevYear)
			prevPriority, prevYear = s.PriorityLevel, s.ProposedAuditYear
		}
	}
}

func TestPriorityPolicy_RejectsUnknownLevel(t *testing.T) {
	_, err := DefaultPriorityPolicy().Schedule("", false, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
