package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
	"github.com/banking/audit-risk-service/internal/repository/memory"
)

func warningCodes(ws []Warning) map[WarningCode][]string {
	out := make(map[WarningCode][]string)
	for _, w := range ws {
		out[w.Code] = append(out[w.Code], w.Name)
	}
	return out
}

func TestWeightConfig_DefaultsAreClean(t *testing.T) {
	c := NewWeightConfig(logger.NewNop())

	w := c.Current()
	assert.Equal(t, uint64(1), w.Version())
	assert.Equal(t, 0.20, w.Weight(string(domain.FactorStrategicSignificance)))
	assert.Equal(t, 0.8, w.Weight(WeightResidualInternalAudit))
	assert.Equal(t, 3.6, w.Threshold(ThresholdCombinedHigh))
	assert.Equal(t, 0.15, w.CoverageRatio(domain.CoverageLimited))

	warnings := c.Load("defaults", DefaultEntries())
	assert.Empty(t, warnings)
	assert.Equal(t, uint64(2), c.Current().Version())
}

func TestWeightConfig_UnknownNameFallsBackToZero(t *testing.T) {
	w := NewWeightConfig(logger.NewNop()).Current()
	assert.Zero(t, w.Weight("no_such_weight"))
}

func TestWeightConfig_SumMismatchWarnsButLoads(t *testing.T) {
	c := NewWeightConfig(logger.NewNop())
	entries := DefaultEntries()
	for i := range entries {
		if entries[i].FactorName == string(domain.FactorFinancialImpact) {
			entries[i].Weight = 0.5
		}
	}

	warnings := c.Load("test", entries)

	codes := warningCodes(warnings)
	require.Contains(t, codes, WarningSumMismatch)
	assert.Equal(t, []string{string(domain.WeightCategoryRiskFactor)}, codes[WarningSumMismatch])
	assert.Equal(t, 0.5, c.Current().Weight(string(domain.FactorFinancialImpact)))
}

func TestWeightConfig_MissingAndInvalidUseDefaults(t *testing.T) {
	c := NewWeightConfig(logger.NewNop())
	warnings := c.Load("test", []domain.RiskWeight{
		{FactorName: string(domain.FactorCLevelConcerns), Category: domain.WeightCategoryRiskFactor, Weight: -1},
		{FactorName: "Assurance_Regulator", Category: domain.WeightCategoryAssuranceCoverage, Weight: 0.3},
		{FactorName: WeightResidualEnterprise, Category: domain.WeightCategoryRiskFactor, Weight: 0.9},
		{FactorName: string(domain.CoverageModerate), Category: domain.WeightCategoryCoverageRatio, Weight: 1.5},
	})

	codes := warningCodes(warnings)
	assert.Contains(t, codes[WarningInvalid], string(domain.FactorCLevelConcerns))
	assert.Contains(t, codes[WarningInvalid], string(domain.CoverageModerate))
	assert.Equal(t, []string{"Assurance_Regulator"}, codes[WarningUnknown])
	assert.Equal(t, []string{WeightResidualEnterprise}, codes[WarningCategoryMismatch])
	assert.Contains(t, codes[WarningMissing], string(domain.FactorFinancialImpact))
	assert.NotContains(t, codes, WarningSumMismatch)

	w := c.Current()
	assert.Equal(t, 0.15, w.Weight(string(domain.FactorCLevelConcerns)))
	assert.Equal(t, 0.2, w.Weight(WeightResidualEnterprise))
	assert.Equal(t, 0.5, w.CoverageRatio(domain.CoverageModerate))
}

func TestWeightConfig_OrderingWarnings(t *testing.T) {
	c := NewWeightConfig(logger.NewNop())
	entries := DefaultEntries()
	for i := range entries {
		switch entries[i].FactorName {
		case ThresholdCombinedMedium:
			entries[i].Weight = 4
		case string(domain.CoverageLimited):
			entries[i].Weight = 0.6
		}
	}

	codes := warningCodes(c.Load("test", entries))
	assert.ElementsMatch(t,
		[]string{ThresholdCombinedMedium, string(domain.WeightCategoryCoverageRatio)},
		codes[WarningOrdering])
}

func TestWeightConfig_SnapshotsAreIsolated(t *testing.T) {
	c := NewWeightConfig(logger.NewNop())
	before := c.Current()

	entries := DefaultEntries()
	for i := range entries {
		if entries[i].FactorName == ThresholdCombinedHigh {
			entries[i].Weight = 4.2
		}
	}
	c.Load("test", entries)

	assert.Equal(t, 3.6, before.Threshold(ThresholdCombinedHigh))
	assert.Equal(t, 4.2, c.Current().Threshold(ThresholdCombinedHigh))
	assert.Greater(t, c.Current().Version(), before.Version())
}

type stubSource struct {
	entries []domain.RiskWeight
	err     error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) LoadWeights(context.Context) ([]domain.RiskWeight, error) {
	return s.entries, s.err
}

type recordingObserver struct {
	versions []uint64
}

func (o *recordingObserver) WeightsLoaded(version uint64, _ int) {
	o.versions = append(o.versions, version)
}

func TestWeightConfig_Reload(t *testing.T) {
	obs := &recordingObserver{}
	c := NewWeightConfig(logger.NewNop(), WithObserver(obs))

	_, err := c.Reload(context.Background(), &stubSource{entries: DefaultEntries()})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, obs.versions)

	boom := errors.New("connection refused")
	_, err = c.Reload(context.Background(), &stubSource{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(2), c.Current().Version())
}

func TestEntriesFromConfig(t *testing.T) {
	cfg := &config.ScoringConfig{
		Factors: config.FactorWeights{
			FinancialImpact:          0.15,
			LegalComplianceImpact:    0.15,
			StrategicSignificance:    0.20,
			TechnologicalCyberImpact: 0.15,
			NewProcessSystem:         0.10,
			StakeholderImpact:        0.10,
			CLevelConcerns:           0.15,
		},
		CoverageBlend:  config.CoverageBlendWeights{InternalAudit: 0.6, ThirdParty: 0.4},
		ResidualBlend:  config.ResidualBlendWeights{InternalAudit: 0.8, Enterprise: 0.2},
		CoverageRatios: config.CoverageRatios{Comprehensive: 0.95, Moderate: 0.5, Limited: 0.25},
		Thresholds:     config.Thresholds{InherentHigh: 1.8, InherentMedium: 1.0, CombinedHigh: 3.6, CombinedMedium: 2.1},
	}

	c := NewWeightConfig(logger.NewNop())
	warnings, err := c.Reload(context.Background(), NewConfigSource(cfg))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	w := c.Current()
	assert.Equal(t, 0.6, w.Weight(WeightCoverageInternalAudit))
	assert.Equal(t, 0.25, w.CoverageRatio(domain.CoverageLimited))

	h, err := w.Haircut(nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, h, 1e-9)
}

func TestSeedWeights_OnlyFillsEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	seeded, err := SeedWeights(ctx, store, DefaultEntries())
	require.NoError(t, err)
	assert.True(t, seeded)

	c := NewWeightConfig(logger.NewNop())
	warnings, err := c.Reload(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 0.95, c.Current().CoverageRatio(domain.CoverageComprehensive))

	require.NoError(t, store.SaveWeights(ctx, []domain.RiskWeight{
		{FactorName: string(domain.CoverageLimited), Category: domain.WeightCategoryCoverageRatio, Weight: 0.05},
	}))
	seeded, err = SeedWeights(ctx, store, DefaultEntries())
	require.NoError(t, err)
	assert.False(t, seeded)

	_, err = c.Reload(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 0.05, c.Current().CoverageRatio(domain.CoverageLimited))
}

func TestSeedWeights_PropagatesLoadFailure(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := SeedWeights(context.Background(), failingWeightStore{&stubSource{err: boom}}, DefaultEntries())
	assert.ErrorIs(t, err, boom)
}

type failingWeightStore struct {
	*stubSource
}

func (failingWeightStore) SaveWeights(context.Context, []domain.RiskWeight) error {
	return errors.New("unreachable")
}
