package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists area state in PostgreSQL. Update runs inside one
// transaction and holds a row lock on the area for its duration.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewStore creates a store over an open pool
func NewStore(pool *pgxpool.Pool, log *logger.Logger) *Store {
	return &Store{pool: pool, log: log.Named("postgres_store")}
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return persistenceErr(err, "database ping failed")
	}
	return nil
}

// CreateArea inserts a new auditable area
func (s *Store) CreateArea(ctx context.Context, area *domain.AuditableArea) error {
	if err := area.Validate(); err != nil {
		return err
	}

	var result *string
	if area.LastAuditResult != nil {
		r := string(*area.LastAuditResult)
		result = &r
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO auditable_areas (id, name, business_unit, category, regulatory_requirement,
			regulation, last_audit_date, last_audit_result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		area.ID, area.Name, area.BusinessUnit, string(area.Category), area.RegulatoryRequirement,
		area.Regulation, area.LastAuditDate, result, area.CreatedAt, area.UpdatedAt,
	)
	if err != nil {
		return persistenceErr(err, "failed to insert area", goerr.V("area_id", area.ID))
	}
	return nil
}

// ListAreaIDs returns every area ID ordered by ID
func (s *Store) ListAreaIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM auditable_areas ORDER BY id`)
	if err != nil {
		return nil, persistenceErr(err, "failed to list areas")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, persistenceErr(err, "failed to scan area ids")
	}
	return ids, nil
}

// Load reads an area's state without locking it
func (s *Store) Load(ctx context.Context, areaID uuid.UUID) (*domain.AreaState, error) {
	return loadState(ctx, s.pool, areaID, false)
}

// ListPriorities returns the audit plan rows that pass filter, ordered by
// priority level with unscheduled areas last
func (s *Store) ListPriorities(ctx context.Context, filter domain.PriorityFilter) ([]domain.PriorityEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.name, a.business_unit, a.category, a.regulatory_requirement,
			rf.combined_residual_risk_level, rf.assurance_haircut,
			p.priority_level, p.proposed_audit_year, COALESCE(p.overridden, FALSE)
		FROM auditable_areas a
		LEFT JOIN risk_factors rf ON rf.auditable_area_id = a.id
		LEFT JOIN audit_priority p ON p.auditable_area_id = a.id
		WHERE ($1::int IS NULL OR p.proposed_audit_year = $1)
			AND ($2::text = '' OR rf.combined_residual_risk_level = $2)
		ORDER BY p.priority_level ASC NULLS LAST, a.name, a.id`,
		filter.Year, string(filter.Level))
	if err != nil {
		return nil, persistenceErr(err, "failed to list priorities")
	}
	defer rows.Close()

	var out []domain.PriorityEntry
	for rows.Next() {
		var (
			e        domain.PriorityEntry
			category string
			combined *string
		)
		if err := rows.Scan(&e.AuditableAreaID, &e.Name, &e.BusinessUnit, &category, &e.RegulatoryRequirement,
			&combined, &e.AssuranceHaircut, &e.PriorityLevel, &e.ProposedAuditYear, &e.Overridden); err != nil {
			return nil, persistenceErr(err, "failed to scan priority")
		}
		e.Category = domain.Category(category)
		if combined != nil {
			e.CombinedResidualRiskLevel = domain.RiskLevel(*combined)
		}
		if e.PriorityLevel != nil {
			e.Band = domain.PriorityBandFor(*e.PriorityLevel)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(err, "failed to read priorities")
	}
	return out, nil
}

// Update loads the area under a row lock, applies fn and writes the result
// in the same transaction. Errors from fn are returned as they are and
// nothing is written.
func (s *Store) Update(ctx context.Context, areaID uuid.UUID, fn func(*domain.AreaState) error) (*domain.AreaState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, persistenceErr(err, "failed to begin transaction", goerr.V("area_id", areaID))
	}
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.WithContext(ctx).Warn("Rollback failed", logger.ErrorField(rbErr))
		}
	}()

	state, err := loadState(ctx, tx, areaID, true)
	if err != nil {
		return nil, err
	}

	working := state.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	if err := saveState(ctx, tx, working); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, persistenceErr(err, "failed to commit transaction", goerr.V("area_id", areaID))
	}
	return working, nil
}

func loadState(ctx context.Context, q querier, areaID uuid.UUID, forUpdate bool) (*domain.AreaState, error) {
	areaSQL := `
		SELECT id, name, business_unit, category, regulatory_requirement, regulation,
			last_audit_date, last_audit_result, created_at, updated_at
		FROM auditable_areas WHERE id = $1`
	if forUpdate {
		areaSQL += ` FOR UPDATE`
	}

	var (
		area     domain.AuditableArea
		category string
		result   *string
	)
	err := q.QueryRow(ctx, areaSQL, areaID).Scan(
		&area.ID, &area.Name, &area.BusinessUnit, &category, &area.RegulatoryRequirement, &area.Regulation,
		&area.LastAuditDate, &result, &area.CreatedAt, &area.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(domain.ErrNotFound, "area not found", goerr.V("area_id", areaID))
		}
		return nil, persistenceErr(err, "failed to load area", goerr.V("area_id", areaID))
	}
	area.Category = domain.Category(category)
	if result != nil {
		r := domain.AuditResult(*result)
		area.LastAuditResult = &r
	}

	state := &domain.AreaState{Area: area, Coverage: make(map[domain.ProviderType]*domain.AssuranceCoverage)}

	if state.RiskFactor, err = loadRiskFactor(ctx, q, areaID); err != nil {
		return nil, err
	}
	if err := loadCoverage(ctx, q, state); err != nil {
		return nil, err
	}
	if state.Priority, err = loadPriority(ctx, q, areaID); err != nil {
		return nil, err
	}
	return state, nil
}

func loadRiskFactor(ctx context.Context, q querier, areaID uuid.UUID) (*domain.RiskFactor, error) {
	var (
		rf                                   domain.RiskFactor
		fin, legal, strat, tech, proc, stake string
		clevel, erm, iaLevel, combinedLevel  string
		version                              int64
		calculatedAt                         *time.Time
	)
	err := q.QueryRow(ctx, `
		SELECT id, auditable_area_id,
			financial_impact, legal_compliance_impact, strategic_significance,
			technological_cyber_impact, new_process_system, stakeholder_impact, c_level_concerns,
			erm_residual_risk, inherent_risk_score, assurance_haircut,
			internal_audit_residual_score, internal_audit_residual_risk,
			combined_residual_risk, combined_residual_risk_level,
			weights_version, calculated_at, created_at, updated_at
		FROM risk_factors WHERE auditable_area_id = $1`, areaID).Scan(
		&rf.ID, &rf.AuditableAreaID,
		&fin, &legal, &strat, &tech, &proc, &stake, &clevel,
		&erm, &rf.InherentRiskScore, &rf.AssuranceHaircut,
		&rf.InternalAuditResidualScore, &iaLevel,
		&rf.CombinedResidualRisk, &combinedLevel,
		&version, &calculatedAt, &rf.CreatedAt, &rf.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr(err, "failed to load risk factor", goerr.V("area_id", areaID))
	}

	rf.Ratings = domain.Ratings{
		FinancialImpact:          domain.RiskLevel(fin),
		LegalComplianceImpact:    domain.RiskLevel(legal),
		StrategicSignificance:    domain.RiskLevel(strat),
		TechnologicalCyberImpact: domain.RiskLevel(tech),
		NewProcessSystem:         domain.RiskLevel(proc),
		StakeholderImpact:        domain.RiskLevel(stake),
		CLevelConcerns:           domain.RiskLevel(clevel),
	}
	rf.EnterpriseResidualRisk = domain.RiskLevel(erm)
	rf.InternalAuditResidualRisk = domain.RiskLevel(iaLevel)
	rf.CombinedResidualRiskLevel = domain.RiskLevel(combinedLevel)
	if version > 0 {
		rf.WeightsVersion = uint64(version)
	}
	if calculatedAt != nil {
		rf.CalculatedAt = *calculatedAt
	}
	return &rf, nil
}

func loadCoverage(ctx context.Context, q querier, state *domain.AreaState) error {
	rows, err := q.Query(ctx, `
		SELECT id, auditable_area_id, provider_type, coverage_level, last_assurance_date,
			comments, created_at, updated_at
		FROM assurance_coverage WHERE auditable_area_id = $1`, state.Area.ID)
	if err != nil {
		return persistenceErr(err, "failed to load coverage", goerr.V("area_id", state.Area.ID))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c               domain.AssuranceCoverage
			provider, level string
		)
		if err := rows.Scan(&c.ID, &c.AuditableAreaID, &provider, &level, &c.LastAssuranceDate,
			&c.Comments, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return persistenceErr(err, "failed to scan coverage", goerr.V("area_id", state.Area.ID))
		}
		c.ProviderType = domain.ProviderType(provider)
		c.CoverageLevel = domain.CoverageLevel(level)
		state.Coverage[c.ProviderType] = &c
	}
	if err := rows.Err(); err != nil {
		return persistenceErr(err, "failed to read coverage", goerr.V("area_id", state.Area.ID))
	}
	return nil
}

func loadPriority(ctx context.Context, q querier, areaID uuid.UUID) (*domain.PriorityResult, error) {
	var p domain.PriorityResult
	err := q.QueryRow(ctx, `
		SELECT auditable_area_id, priority_level, proposed_audit_year, justification,
			overridden, calculated_at, updated_at
		FROM audit_priority WHERE auditable_area_id = $1`, areaID).Scan(
		&p.AuditableAreaID, &p.PriorityLevel, &p.ProposedAuditYear, &p.Justification,
		&p.Overridden, &p.CalculatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr(err, "failed to load priority", goerr.V("area_id", areaID))
	}
	return &p, nil
}

func saveState(ctx context.Context, q querier, st *domain.AreaState) error {
	id := st.Area.ID

	if _, err := q.Exec(ctx, `
		UPDATE auditable_areas SET regulatory_requirement = $2, updated_at = $3 WHERE id = $1`,
		id, st.Area.RegulatoryRequirement, st.Area.UpdatedAt,
	); err != nil {
		return persistenceErr(err, "failed to update area", goerr.V("area_id", id))
	}

	if rf := st.RiskFactor; rf != nil {
		var calculatedAt *time.Time
		if !rf.CalculatedAt.IsZero() {
			calculatedAt = &rf.CalculatedAt
		}
		r := rf.Ratings
		if _, err := q.Exec(ctx, `
			INSERT INTO risk_factors (id, auditable_area_id,
				financial_impact, legal_compliance_impact, strategic_significance,
				technological_cyber_impact, new_process_system, stakeholder_impact, c_level_concerns,
				erm_residual_risk, inherent_risk_score, assurance_haircut,
				internal_audit_residual_score, internal_audit_residual_risk,
				combined_residual_risk, combined_residual_risk_level,
				weights_version, calculated_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			ON CONFLICT (auditable_area_id) DO UPDATE SET
				financial_impact = EXCLUDED.financial_impact,
				legal_compliance_impact = EXCLUDED.legal_compliance_impact,
				strategic_significance = EXCLUDED.strategic_significance,
				technological_cyber_impact = EXCLUDED.technological_cyber_impact,
				new_process_system = EXCLUDED.new_process_system,
				stakeholder_impact = EXCLUDED.stakeholder_impact,
				c_level_concerns = EXCLUDED.c_level_concerns,
				erm_residual_risk = EXCLUDED.erm_residual_risk,
				inherent_risk_score = EXCLUDED.inherent_risk_score,
				assurance_haircut = EXCLUDED.assurance_haircut,
				internal_audit_residual_score = EXCLUDED.internal_audit_residual_score,
				internal_audit_residual_risk = EXCLUDED.internal_audit_residual_risk,
				combined_residual_risk = EXCLUDED.combined_residual_risk,
				combined_residual_risk_level = EXCLUDED.combined_residual_risk_level,
				weights_version = EXCLUDED.weights_version,
				calculated_at = EXCLUDED.calculated_at,
				updated_at = EXCLUDED.updated_at`,
			rf.ID, id,
			string(r.FinancialImpact), string(r.LegalComplianceImpact), string(r.StrategicSignificance),
			string(r.TechnologicalCyberImpact), string(r.NewProcessSystem), string(r.StakeholderImpact), string(r.CLevelConcerns),
			string(rf.EnterpriseResidualRisk), rf.InherentRiskScore, rf.AssuranceHaircut,
			rf.InternalAuditResidualScore, string(rf.InternalAuditResidualRisk),
			rf.CombinedResidualRisk, string(rf.CombinedResidualRiskLevel),
			int64(rf.WeightsVersion), calculatedAt, rf.CreatedAt, rf.UpdatedAt,
		); err != nil {
			return persistenceErr(err, "failed to save risk factor", goerr.V("area_id", id))
		}
	}

	for _, p := range domain.ProviderTypes {
		c, ok := st.Coverage[p]
		if !ok || c == nil {
			continue
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO assurance_coverage (id, auditable_area_id, provider_type, coverage_level,
				last_assurance_date, comments, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (auditable_area_id, provider_type) DO UPDATE SET
				coverage_level = EXCLUDED.coverage_level,
				last_assurance_date = EXCLUDED.last_assurance_date,
				comments = EXCLUDED.comments,
				updated_at = EXCLUDED.updated_at`,
			c.ID, id, string(c.ProviderType), string(c.CoverageLevel),
			c.LastAssuranceDate, c.Comments, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return persistenceErr(err, "failed to save coverage",
				goerr.V("area_id", id), goerr.V("provider", p))
		}
	}

	if p := st.Priority; p != nil {
		if _, err := q.Exec(ctx, `
			INSERT INTO audit_priority (auditable_area_id, priority_level, proposed_audit_year,
				justification, overridden, calculated_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (auditable_area_id) DO UPDATE SET
				priority_level = EXCLUDED.priority_level,
				proposed_audit_year = EXCLUDED.proposed_audit_year,
				justification = EXCLUDED.justification,
				overridden = EXCLUDED.overridden,
				calculated_at = EXCLUDED.calculated_at,
				updated_at = EXCLUDED.updated_at`,
			id, p.PriorityLevel, p.ProposedAuditYear, p.Justification, p.Overridden,
			p.CalculatedAt, p.UpdatedAt,
		); err != nil {
			return persistenceErr(err, "failed to save priority", goerr.V("area_id", id))
		}
	}
	return nil
}
