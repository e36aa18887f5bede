package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// AreaState is everything the recalculation pipeline reads and writes for one area.
// Stores load it and persist it as one unit of work.
type AreaState struct {
	Area       AuditableArea
	RiskFactor *RiskFactor
	Coverage   map[ProviderType]*AssuranceCoverage
	Priority   *PriorityResult
}

// CoverageLevels returns the rated level per provider. Absent providers are omitted.
func (s *AreaState) CoverageLevels() map[ProviderType]CoverageLevel {
	levels := make(map[ProviderType]CoverageLevel, len(s.Coverage))
	for p, c := range s.Coverage {
		if c != nil {
			levels[p] = c.CoverageLevel
		}
	}
	return levels
}

// Validate checks every stored input so malformed rows fail before scoring
func (s *AreaState) Validate() error {
	if err := s.Area.Validate(); err != nil {
		return err
	}
	if s.RiskFactor != nil {
		if err := s.RiskFactor.Validate(); err != nil {
			return err
		}
	}
	for p, c := range s.Coverage {
		if c == nil {
			continue
		}
		if c.ProviderType != p {
			return goerr.Wrap(ErrValidation, "coverage keyed under the wrong provider",
				goerr.V("area_id", s.Area.ID), goerr.V("key", p), goerr.V("provider", c.ProviderType))
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy
func (s *AreaState) Clone() *AreaState {
	out := &AreaState{Area: s.Area}
	if s.Area.LastAuditDate != nil {
		d := *s.Area.LastAuditDate
		out.Area.LastAuditDate = &d
	}
	if s.Area.LastAuditResult != nil {
		r := *s.Area.LastAuditResult
		out.Area.LastAuditResult = &r
	}
	if s.RiskFactor != nil {
		rf := *s.RiskFactor
		out.RiskFactor = &rf
	}
	out.Coverage = make(map[ProviderType]*AssuranceCoverage, len(s.Coverage))
	for p, c := range s.Coverage {
		if c == nil {
			continue
		}
		cc := *c
		if c.LastAssuranceDate != nil {
			d := *c.LastAssuranceDate
			cc.LastAssuranceDate = &d
		}
		if c.Comments != nil {
			cm := *c.Comments
			cc.Comments = &cm
		}
		out.Coverage[p] = &cc
	}
	if s.Priority != nil {
		pr := *s.Priority
		if s.Priority.Justification != nil {
			j := *s.Priority.Justification
			pr.Justification = &j
		}
		out.Priority = &pr
	}
	return out
}

// Snapshot renders the state for callers
func (s *AreaState) Snapshot() *RiskFactorSnapshot {
	c := s.Clone()
	snap := &RiskFactorSnapshot{
		AuditableAreaID:       c.Area.ID,
		RegulatoryRequirement: c.Area.RegulatoryRequirement,
		RiskFactor:            c.RiskFactor,
		Priority:              c.Priority,
		Coverage:              make([]AssuranceCoverage, 0, len(c.Coverage)),
	}
	for _, p := range ProviderTypes {
		if cov, ok := c.Coverage[p]; ok {
			snap.Coverage = append(snap.Coverage, *cov)
		}
	}
	return snap
}

// RiskFactorSnapshot is the consistent view of an area returned by every mutation
type RiskFactorSnapshot struct {
	AuditableAreaID       uuid.UUID           `json:"auditable_area_id"`
	RegulatoryRequirement bool                `json:"regulatory_requirement"`
	RiskFactor            *RiskFactor         `json:"risk_factor,omitempty"`
	Coverage              []AssuranceCoverage `json:"coverage"`
	Priority              *PriorityResult     `json:"priority,omitempty"`
}

// Trigger names the input change that started a recalculation
type Trigger string

const (
	TriggerRatingsChanged            Trigger = "ratings_changed"
	TriggerCoverageChanged           Trigger = "coverage_changed"
	TriggerEnterpriseResidualChanged Trigger = "enterprise_residual_changed"
	TriggerRegulatoryChanged         Trigger = "regulatory_changed"
	TriggerPriorityOverridden        Trigger = "priority_overridden"
	TriggerFullRecompute             Trigger = "full_recompute"
)

// RecalculationEvent is published after a recalculation commits
type RecalculationEvent struct {
	EventID         uuid.UUID       `json:"event_id"`
	AuditableAreaID uuid.UUID       `json:"auditable_area_id"`
	Trigger         Trigger         `json:"trigger"`
	RiskFactor      *RiskFactor     `json:"risk_factor,omitempty"`
	Priority        *PriorityResult `json:"priority,omitempty"`
	WeightsVersion  uint64          `json:"weights_version"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// PriorityEntry summarises the area for the audit plan
func (s *AreaState) PriorityEntry() PriorityEntry {
	e := PriorityEntry{
		AuditableAreaID:       s.Area.ID,
		Name:                  s.Area.Name,
		BusinessUnit:          s.Area.BusinessUnit,
		Category:              s.Area.Category,
		RegulatoryRequirement: s.Area.RegulatoryRequirement,
	}
	if rf := s.RiskFactor; rf != nil {
		e.CombinedResidualRiskLevel = rf.CombinedResidualRiskLevel
		haircut := rf.AssuranceHaircut
		e.AssuranceHaircut = &haircut
	}
	if p := s.Priority; p != nil {
		level, year := p.PriorityLevel, p.ProposedAuditYear
		e.PriorityLevel = &level
		e.ProposedAuditYear = &year
		e.Overridden = p.Overridden
		e.Band = PriorityBandFor(level)
	}
	return e
}
