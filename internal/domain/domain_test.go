package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVocabularies(t *testing.T) {
	l, err := ParseRiskLevel("High")
	require.NoError(t, err)
	assert.Equal(t, RiskLevelHigh, l)

	_, err = ParseRiskLevel("high")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ParseCoverageLevel("None")
	assert.ErrorIs(t, err, ErrValidation)

	p, err := ParseProviderType("ThirdParty")
	require.NoError(t, err)
	assert.Equal(t, ProviderThirdParty, p)
}

func TestRiskLevelOrdinal(t *testing.T) {
	assert.Equal(t, 1, RiskLevelLow.Ordinal())
	assert.Equal(t, 3, RiskLevelMedium.Ordinal())
	assert.Equal(t, 5, RiskLevelHigh.Ordinal())
}

func TestRatingUpdate(t *testing.T) {
	assert.ErrorIs(t, RatingUpdate{}.Validate(), ErrValidation)
	assert.ErrorIs(t, RatingUpdate{"unknown": RiskLevelLow}.Validate(), ErrValidation)
	assert.ErrorIs(t, RatingUpdate{FactorFinancialImpact: "Huge"}.Validate(), ErrValidation)
	assert.NoError(t, RatingUpdate{FactorFinancialImpact: RiskLevelLow}.Validate())

	r := DefaultRatings()
	assert.False(t, r.Apply(RatingUpdate{FactorStakeholderImpact: RiskLevelMedium}))
	assert.True(t, r.Apply(RatingUpdate{FactorStakeholderImpact: RiskLevelHigh}))
	assert.Equal(t, RiskLevelHigh, r.Get(FactorStakeholderImpact))
	assert.Equal(t, RiskLevel(""), r.Get("unknown"))
}

func TestAreaStateValidate(t *testing.T) {
	id := uuid.New()
	st := &AreaState{
		Area:       AuditableArea{ID: id, Category: CategoryHR},
		RiskFactor: NewRiskFactor(id, time.Now()),
		Coverage: map[ProviderType]*AssuranceCoverage{
			ProviderInternalAudit: {ProviderType: ProviderInternalAudit, CoverageLevel: CoverageModerate},
		},
	}
	require.NoError(t, st.Validate())

	st.Coverage[ProviderThirdParty] = &AssuranceCoverage{ProviderType: ProviderInternalAudit, CoverageLevel: CoverageLimited}
	assert.ErrorIs(t, st.Validate(), ErrValidation)
	delete(st.Coverage, ProviderThirdParty)

	st.RiskFactor.EnterpriseResidualRisk = "Unknown"
	assert.ErrorIs(t, st.Validate(), ErrValidation)
	st.RiskFactor.EnterpriseResidualRisk = RiskLevelLow

	st.Area.Category = "Marketing"
	assert.ErrorIs(t, st.Validate(), ErrValidation)
}

func TestAreaStateCloneIsDeep(t *testing.T) {
	id := uuid.New()
	comment := "original"
	justification := "scheduled"
	st := &AreaState{
		Area:       AuditableArea{ID: id, Category: CategoryIT},
		RiskFactor: NewRiskFactor(id, time.Now()),
		Coverage: map[ProviderType]*AssuranceCoverage{
			ProviderThirdParty: {ProviderType: ProviderThirdParty, CoverageLevel: CoverageModerate, Comments: &comment},
		},
		Priority: &PriorityResult{AuditableAreaID: id, PriorityLevel: 3, Justification: &justification},
	}

	c := st.Clone()
	c.RiskFactor.Ratings.FinancialImpact = RiskLevelHigh
	*c.Coverage[ProviderThirdParty].Comments = "changed"
	*c.Priority.Justification = "changed"

	assert.Equal(t, RiskLevelMedium, st.RiskFactor.Ratings.FinancialImpact)
	assert.Equal(t, "original", comment)
	assert.Equal(t, "scheduled", justification)
}

func TestSnapshotOrdersCoverageByProvider(t *testing.T) {
	id := uuid.New()
	st := &AreaState{
		Area: AuditableArea{ID: id, Category: CategoryIT},
		Coverage: map[ProviderType]*AssuranceCoverage{
			ProviderThirdParty:    {ProviderType: ProviderThirdParty, CoverageLevel: CoverageModerate},
			ProviderInternalAudit: {ProviderType: ProviderInternalAudit, CoverageLevel: CoverageLimited},
		},
	}

	snap := st.Snapshot()
	require.Len(t, snap.Coverage, 2)
	assert.Equal(t, ProviderInternalAudit, snap.Coverage[0].ProviderType)
	assert.Equal(t, ProviderThirdParty, snap.Coverage[1].ProviderType)
}

func TestPriorityOverrideValidate(t *testing.T) {
	ok := PriorityOverride{PriorityLevel: 6, ProposedAuditYear: 2030, Justification: "committee"}
	assert.NoError(t, ok.Validate())

	for _, o := range []PriorityOverride{
		{PriorityLevel: 0, ProposedAuditYear: 2030, Justification: "x"},
		{PriorityLevel: 7, ProposedAuditYear: 2030, Justification: "x"},
		{PriorityLevel: 3, ProposedAuditYear: 1999, Justification: "x"},
		{PriorityLevel: 3, ProposedAuditYear: 2030},
	} {
		assert.ErrorIs(t, o.Validate(), ErrValidation)
	}
}

func TestPriorityBandFor(t *testing.T) {
	assert.Equal(t, PriorityBandUrgent, PriorityBandFor(1))
	assert.Equal(t, PriorityBandUrgent, PriorityBandFor(3))
	assert.Equal(t, PriorityBandPlanned, PriorityBandFor(4))
	assert.Equal(t, PriorityBandPlanned, PriorityBandFor(6))
	assert.Equal(t, PriorityBandRoutine, PriorityBandFor(9))
}

func TestAreaStatePriorityEntry(t *testing.T) {
	id := uuid.New()
	st := &AreaState{Area: AuditableArea{ID: id, Name: "Treasury", Category: CategoryFinancial}}

	e := st.PriorityEntry()
	assert.Equal(t, "Treasury", e.Name)
	assert.Nil(t, e.PriorityLevel)
	assert.Nil(t, e.AssuranceHaircut)
	assert.Empty(t, e.Band)

	st.RiskFactor = NewRiskFactor(id, time.Now())
	st.RiskFactor.AssuranceHaircut = 0.325
	st.RiskFactor.CombinedResidualRiskLevel = RiskLevelMedium
	st.Priority = &PriorityResult{AuditableAreaID: id, PriorityLevel: 4, ProposedAuditYear: 2027}

	e = st.PriorityEntry()
	require.NotNil(t, e.PriorityLevel)
	assert.Equal(t, 4, *e.PriorityLevel)
	assert.Equal(t, 2027, *e.ProposedAuditYear)
	assert.InDelta(t, 0.325, *e.AssuranceHaircut, 1e-9)
	assert.Equal(t, RiskLevelMedium, e.CombinedResidualRiskLevel)
	assert.Equal(t, PriorityBandPlanned, e.Band)
}

func TestPriorityFilter(t *testing.T) {
	year := 2027
	bad := 1990
	assert.NoError(t, PriorityFilter{}.Validate())
	assert.NoError(t, PriorityFilter{Year: &year, Level: RiskLevelHigh}.Validate())
	assert.ErrorIs(t, PriorityFilter{Year: &bad}.Validate(), ErrValidation)
	assert.ErrorIs(t, PriorityFilter{Level: "Severe"}.Validate(), ErrValidation)

	level, y := 4, 2027
	scheduled := &PriorityEntry{PriorityLevel: &level, ProposedAuditYear: &y, CombinedResidualRiskLevel: RiskLevelMedium}
	unscheduled := &PriorityEntry{}

	assert.True(t, PriorityFilter{}.Match(unscheduled))
	assert.True(t, PriorityFilter{Year: &year}.Match(scheduled))
	assert.False(t, PriorityFilter{Year: &year}.Match(unscheduled))
	assert.False(t, PriorityFilter{Level: RiskLevelHigh}.Match(scheduled))
	assert.True(t, PriorityFilter{Level: RiskLevelMedium}.Match(scheduled))
}

func TestSortPriorityEntries(t *testing.T) {
	one, four := 1, 4
	entries := []PriorityEntry{
		{Name: "Unscheduled"},
		{Name: "Payroll", PriorityLevel: &four},
		{Name: "Lending", PriorityLevel: &four},
		{Name: "Treasury", PriorityLevel: &one},
	}
	SortPriorityEntries(entries)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Treasury", "Lending", "Payroll", "Unscheduled"}, names)
}
