package recalc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
)

// SetRiskRatings changes some or all of the seven ratings and refreshes
// inherent risk, residual risk and priority.
func (e *Engine) SetRiskRatings(ctx context.Context, areaID uuid.UUID, update domain.RatingUpdate) (*domain.RiskFactorSnapshot, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	tr, err := e.run(ctx, "SetRiskRatings", areaID, domain.TriggerRatingsChanged,
		func(st *domain.AreaState, now time.Time) error {
			st.RiskFactor.Ratings.Apply(update)
			st.RiskFactor.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot(), nil
}

// SetCoverage creates or updates the coverage record of one provider and
// refreshes the haircut, residual risk and priority.
func (e *Engine) SetCoverage(ctx context.Context, areaID uuid.UUID, update domain.CoverageUpdate) (*domain.RiskFactorSnapshot, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	tr, err := e.run(ctx, "SetCoverage", areaID, domain.TriggerCoverageChanged,
		func(st *domain.AreaState, now time.Time) error {
			if st.Coverage == nil {
				st.Coverage = make(map[domain.ProviderType]*domain.AssuranceCoverage)
			}
			cov, ok := st.Coverage[update.Provider]
			if !ok {
				cov = &domain.AssuranceCoverage{
					ID:              uuid.New(),
					AuditableAreaID: areaID,
					ProviderType:    update.Provider,
					CreatedAt:       now,
				}
				st.Coverage[update.Provider] = cov
			}
			cov.CoverageLevel = update.Level
			switch {
			case update.ClearLastAssuranceDate:
				cov.LastAssuranceDate = nil
			case update.LastAssuranceDate != nil:
				d := *update.LastAssuranceDate
				cov.LastAssuranceDate = &d
			}
			switch {
			case update.ClearComments:
				cov.Comments = nil
			case update.Comments != nil:
				c := *update.Comments
				cov.Comments = &c
			}
			cov.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot(), nil
}

// SetEnterpriseResidual changes the manually assessed enterprise residual
// risk and refreshes the combined residual risk and priority.
func (e *Engine) SetEnterpriseResidual(ctx context.Context, areaID uuid.UUID, level domain.RiskLevel) (*domain.RiskFactorSnapshot, error) {
	if !level.Valid() {
		return nil, goerr.Wrap(domain.ErrValidation, "unrecognized enterprise residual risk", goerr.V("value", level))
	}

	tr, err := e.run(ctx, "SetEnterpriseResidual", areaID, domain.TriggerEnterpriseResidualChanged,
		func(st *domain.AreaState, now time.Time) error {
			st.RiskFactor.EnterpriseResidualRisk = level
			st.RiskFactor.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot(), nil
}

// SetRegulatoryRequirement flips the area's regulatory flag and reschedules it
func (e *Engine) SetRegulatoryRequirement(ctx context.Context, areaID uuid.UUID, regulatory bool) (*domain.RiskFactorSnapshot, error) {
	tr, err := e.run(ctx, "SetRegulatoryRequirement", areaID, domain.TriggerRegulatoryChanged,
		func(st *domain.AreaState, now time.Time) error {
			st.Area.RegulatoryRequirement = regulatory
			st.Area.UpdatedAt = now
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot(), nil
}

// RecomputeOne recalculates every derived field of an area from its stored
// inputs using the current weights. A manual priority is kept.
func (e *Engine) RecomputeOne(ctx context.Context, areaID uuid.UUID) (*domain.PriorityResult, error) {
	tr, err := e.run(ctx, "RecomputeOne", areaID, domain.TriggerFullRecompute, nil)
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot().Priority, nil
}

// OverridePriority pins the area's priority. Later recalculations refresh the
// risk fields but leave the pinned priority alone until it is cleared.
func (e *Engine) OverridePriority(ctx context.Context, areaID uuid.UUID, override domain.PriorityOverride) (*domain.PriorityResult, error) {
	if err := override.Validate(); err != nil {
		return nil, err
	}

	tr, err := e.run(ctx, "OverridePriority", areaID, domain.TriggerPriorityOverridden,
		func(st *domain.AreaState, now time.Time) error {
			justification := override.Justification
			st.Priority = &domain.PriorityResult{
				AuditableAreaID:   areaID,
				PriorityLevel:     override.PriorityLevel,
				ProposedAuditYear: override.ProposedAuditYear,
				Justification:     &justification,
				Overridden:        true,
				CalculatedAt:      now,
				UpdatedAt:         now,
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot().Priority, nil
}

// ClearPriorityOverride releases a pinned priority and recalculates the area
func (e *Engine) ClearPriorityOverride(ctx context.Context, areaID uuid.UUID) (*domain.PriorityResult, error) {
	tr, err := e.run(ctx, "ClearPriorityOverride", areaID, domain.TriggerFullRecompute,
		func(st *domain.AreaState, _ time.Time) error {
			if st.Priority != nil {
				st.Priority.Overridden = false
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tr.state.Snapshot().Priority, nil
}

// Snapshot returns the stored state of an area without recalculating
func (e *Engine) Snapshot(ctx context.Context, areaID uuid.UUID) (*domain.RiskFactorSnapshot, error) {
	st, err := e.store.Load(ctx, areaID)
	if err != nil {
		return nil, err
	}
	return st.Snapshot(), nil
}

// ListPriorities returns the audit plan across all areas, most urgent first.
// Areas without a priority come last.
func (e *Engine) ListPriorities(ctx context.Context, filter domain.PriorityFilter) ([]domain.PriorityEntry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	entries, err := e.store.ListPriorities(ctx, filter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list priorities")
	}
	return entries, nil
}

// Weights returns the active weight snapshot
func (e *Engine) Weights() []domain.RiskWeight {
	return e.weights.Current().Entries()
}

// WeightsVersion returns the version of the active weight snapshot
func (e *Engine) WeightsVersion() uint64 {
	return e.weights.Current().Version()
}
